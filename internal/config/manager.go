package config

import (
	"sync"
	"time"
)

// Manager guards a Config for concurrent runtime reads. Readers take a short
// critical section and work on the returned copy; no caller holds the lock
// across I/O.
type Manager struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewManager wraps a loaded config.
func NewManager(cfg *Config) *Manager {
	return &Manager{cfg: cfg}
}

// Get returns a snapshot of the current config.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cfg
}

// Set replaces the current config.
func (m *Manager) Set(cfg *Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

// Update applies fn to a copy of the config and installs the result.
func (m *Manager) Update(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := *m.cfg
	fn(&next)
	m.cfg = &next
}

// StalledTimeout returns the stalled-torrent cutoff as a duration.
func (m *Manager) StalledTimeout() time.Duration {
	return time.Duration(m.Get().Downloads.StalledTimeoutSeconds) * time.Second
}

// CheckDelay returns the pause between per-title download runs.
func (m *Manager) CheckDelay() time.Duration {
	return time.Duration(m.Get().Downloads.CheckDelaySeconds) * time.Second
}

// RssDelay returns the pause between feed polls.
func (m *Manager) RssDelay() time.Duration {
	return time.Duration(m.Get().Downloads.RssDelaySeconds) * time.Second
}
