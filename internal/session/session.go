// Package session хранит состояние сессии: токен и снимок профиля пользователя.
// Токен переживает перезапуск клиента в файле с фиксированным именем; всё
// остальное состояние живёт только в памяти.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mmeshcher/delivery-client/internal/model"
)

// tokenFileName — фиксированное имя файла токена в каталоге конфигурации.
const tokenFileName = "token"

const appDirName = "delivery-client"

// Store сохраняет и читает токен сессии на диске.
type Store struct {
	path string
}

// NewStore создаёт хранилище токена. При пустом path используется файл с
// фиксированным именем в пользовательском каталоге конфигурации.
func NewStore(path string) (*Store, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve config dir: %w", err)
		}
		path = filepath.Join(dir, appDirName, tokenFileName)
	}
	return &Store{path: path}, nil
}

// Load читает сохранённый токен. Отсутствие файла означает
// неаутентифицированное состояние и не является ошибкой.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save записывает токен на диск.
func (s *Store) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// Clear удаляет файл токена. Идемпотентна.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// Session содержит токен и текущий профиль пользователя. Поля читаются почти
// каждой операцией клиента; вызывающие должны быть готовы к тому, что токен
// исчезнет между началом и завершением несвязанного запроса.
type Session struct {
	store *Store

	mu    sync.RWMutex
	token string
	user  *model.User
}

// New создаёт сессию и поднимает сохранённый токен из хранилища.
func New(store *Store) (*Session, error) {
	token, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Session{
		store: store,
		token: token,
	}, nil
}

// Token возвращает текущий токен сессии; пустая строка означает отсутствие сессии.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken сохраняет токен в памяти и на диске.
func (s *Session) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Save(token); err != nil {
		return err
	}
	s.token = token
	return nil
}

// Authenticated сообщает, есть ли у сессии токен.
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// User возвращает снимок профиля текущего пользователя или nil.
func (s *Session) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SetUser обновляет снимок профиля.
func (s *Session) SetUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = u
}

// Clear сбрасывает токен и профиль и удаляет файл токена. Идемпотентна.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
	return s.store.Clear()
}
