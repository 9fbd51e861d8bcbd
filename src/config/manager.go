package config

import (
	"fmt"
	"log/slog"
	"sync"
)

// Manager holds the live configuration and fans out change notifications.
// Reconfiguration never reaches into streaming state; subscribers decide
// what to rebuild from the new snapshot.
type Manager struct {
	loader *Loader
	logger *slog.Logger

	mu          sync.RWMutex
	config      *Config
	subscribers []func(*Config)
}

// NewManager loads the settings file (or defaults) and returns a manager
// over it.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loader := NewLoader(path)
	config, err := loader.Load()
	if err != nil {
		return nil, err
	}
	return &Manager{
		loader: loader,
		logger: logger.With("component", "config"),
		config: config,
	}, nil
}

// NewManagerWithConfig wraps an already-built configuration; used by tests
// and one-shot commands.
func NewManagerWithConfig(config *Config) (*Manager, error) {
	if err := NewValidator().Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Manager{
		loader: NewLoader(""),
		logger: slog.Default().With("component", "config"),
		config: config,
	}, nil
}

// Get returns a copy of the current configuration. Callers may mutate the
// copy freely.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.config
}

// Path returns the settings file path.
func (m *Manager) Path() string {
	return m.loader.Path()
}

// Subscribe registers a callback invoked with the new snapshot after every
// successful Update or Reload. Callbacks run on the mutating goroutine and
// must not block.
func (m *Manager) Subscribe(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Update applies a mutation to a copy of the configuration, validates it,
// persists it, then swaps it in and notifies subscribers. An invalid or
// unpersistable update leaves the live configuration untouched.
func (m *Manager) Update(mutate func(*Config)) error {
	m.mu.Lock()
	next := *m.config
	mutate(&next)

	if err := m.loader.SaveFile(&next); err != nil {
		m.mu.Unlock()
		return err
	}

	m.config = &next
	subs := append([]func(*Config){}, m.subscribers...)
	m.mu.Unlock()

	m.logger.Info("configuration updated", "path", m.loader.Path())
	for _, fn := range subs {
		fn(&next)
	}
	return nil
}

// Reload re-reads the settings file and notifies subscribers. Used by the
// file watcher and by an explicit reload command.
func (m *Manager) Reload() error {
	config, err := m.loader.Load()
	if err != nil {
		return fmt.Errorf("reload configuration: %w", err)
	}

	m.mu.Lock()
	m.config = config
	subs := append([]func(*Config){}, m.subscribers...)
	m.mu.Unlock()

	m.logger.Info("configuration reloaded", "path", m.loader.Path())
	for _, fn := range subs {
		fn(config)
	}
	return nil
}
