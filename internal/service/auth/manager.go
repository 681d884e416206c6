package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrEmptyToken = errors.New("token must not be empty")

// Storage persists the bearer token across runs.
type Storage interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// Manager owns the process-wide token lifecycle: bootstrapped once at
// startup from storage, mutated only through Login/Logout, read-only
// everywhere else.
type Manager struct {
	mu      sync.RWMutex
	token   string
	storage Storage
}

// NewManager wires a manager over the given storage. A nil storage
// keeps the token in memory only.
func NewManager(storage Storage) *Manager {
	if storage == nil {
		storage = memoryStorage{}
	}
	return &Manager{storage: storage}
}

// Bootstrap loads any persisted token. Called once at startup.
func (m *Manager) Bootstrap() error {
	token, err := m.storage.Load()
	if err != nil {
		return fmt.Errorf("load persisted token: %w", err)
	}
	m.mu.Lock()
	m.token = strings.TrimSpace(token)
	m.mu.Unlock()
	return nil
}

// Login stores a new bearer token.
func (m *Manager) Login(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	if err := m.storage.Save(token); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

// Logout wipes the token from memory and storage.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return m.storage.Clear()
}

// Token returns the current bearer token, empty when logged out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// LoggedIn reports whether a token is present.
func (m *Manager) LoggedIn() bool {
	return m.Token() != ""
}

type memoryStorage struct{}

func (memoryStorage) Load() (string, error) { return "", nil }
func (memoryStorage) Save(string) error     { return nil }
func (memoryStorage) Clear() error          { return nil }

// FileStorage keeps the token in a mode-0600 file.
type FileStorage struct {
	Path string
}

func (s FileStorage) Load() (string, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s FileStorage) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.Path, []byte(token), 0o600)
}

func (s FileStorage) Clear() error {
	err := os.Remove(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
