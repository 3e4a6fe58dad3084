// Package config содержит логику чтения конфигурации клиента доставки.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации клиента доставки.
type Config struct {
	APIAddress   string        `env:"API_ADDRESS"`
	TokenFile    string        `env:"TOKEN_FILE"`
	PollInterval time.Duration `env:"POLL_INTERVAL"`
	EmailDomain  string        `env:"EMAIL_DOMAIN"`
	DefaultLat   float64       `env:"DEFAULT_LAT"`
	DefaultLon   float64       `env:"DEFAULT_LON"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envAPIAddress := cfg.APIAddress
	envTokenFile := cfg.TokenFile
	envPollInterval := cfg.PollInterval
	envEmailDomain := cfg.EmailDomain
	envDefaultLat := cfg.DefaultLat
	envDefaultLon := cfg.DefaultLon

	flag.StringVar(&cfg.APIAddress, "a", "http://localhost:8000", "base address of the delivery backend")
	flag.StringVar(&cfg.TokenFile, "t", "", "path to the session token file")
	flag.DurationVar(&cfg.PollInterval, "p", 10*time.Second, "order list refresh interval")
	flag.StringVar(&cfg.EmailDomain, "e", "@temple.edu", "required institution email suffix for registration")
	flag.Float64Var(&cfg.DefaultLat, "lat", 39.9811, "fallback delivery latitude")
	flag.Float64Var(&cfg.DefaultLon, "lon", -75.1540, "fallback delivery longitude")

	flag.Parse()

	// Приоритет определяется присутствием переменной, а не её значением:
	// нулевые координаты и нулевой интервал из окружения тоже учитываются.
	envSet := func(name string) bool {
		_, ok := os.LookupEnv(name)
		return ok
	}

	if envSet("API_ADDRESS") {
		cfg.APIAddress = envAPIAddress
	}
	if envSet("TOKEN_FILE") {
		cfg.TokenFile = envTokenFile
	}
	if envSet("POLL_INTERVAL") {
		cfg.PollInterval = envPollInterval
	}
	if envSet("EMAIL_DOMAIN") {
		cfg.EmailDomain = envEmailDomain
	}
	if envSet("DEFAULT_LAT") {
		cfg.DefaultLat = envDefaultLat
	}
	if envSet("DEFAULT_LON") {
		cfg.DefaultLon = envDefaultLon
	}

	if cfg.APIAddress == "" {
		cfg.APIAddress = "http://localhost:8000"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}

	return cfg, nil
}
