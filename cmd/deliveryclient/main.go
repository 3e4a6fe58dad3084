// Package main запускает терминальный клиент сервиса кампусной доставки.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/delivery-client/internal/api"
	"github.com/mmeshcher/delivery-client/internal/config"
	"github.com/mmeshcher/delivery-client/internal/controller"
	"github.com/mmeshcher/delivery-client/internal/model"
	"github.com/mmeshcher/delivery-client/internal/session"
	"github.com/mmeshcher/delivery-client/internal/ui"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	store, err := session.NewStore(cfg.TokenFile)
	if err != nil {
		sugar.Fatalw("token store initialization error", "error", err.Error())
	}

	sess, err := session.New(store)
	if err != nil {
		sugar.Fatalw("session initialization error", "error", err.Error())
	}

	client := api.NewClient(cfg.APIAddress, sess)

	ctrl := controller.New(client, sess, logger, controller.Options{
		EmailDomain:  cfg.EmailDomain,
		PollInterval: cfg.PollInterval,
		DefaultLocation: model.Location{
			Latitude:  cfg.DefaultLat,
			Longitude: cfg.DefaultLon,
		},
	})

	app := ui.NewApp(ctrl, ui.NewRenderer(os.Stdout), logger, os.Stdin)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Интерактивный цикл; фоновый опрос запускает и гасит контроллер.
	g.Go(func() error {
		sugar.Infow("starting delivery client", "api", cfg.APIAddress)
		if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
	sugar.Info("delivery client stopped")
}
