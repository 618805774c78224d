package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/xgrab/internal/fetch"
	"github.com/ManuGH/xgrab/internal/kv"
)

// SettingsKey is the store key holding operator settings.
const SettingsKey = "settings/operator"

// Settings are the operator toggles that survive restarts.
type Settings struct {
	ShowEphemeralSources   bool `json:"showEphemeralSources"`
	ShowSegmentLikeEntries bool `json:"showSegmentLikeEntries"`
	FetchBatchSize         int  `json:"fetchBatchSize"`
}

// DefaultSettings returns the settings used before anything is stored.
func DefaultSettings() Settings {
	return Settings{FetchBatchSize: fetch.DefaultBatchSize}
}

// Normalize replaces an out-of-range batch size with the default.
func (s Settings) Normalize() Settings {
	s.FetchBatchSize = fetch.ClampBatchSize(s.FetchBatchSize)
	return s
}

// SettingsStore reads and writes Settings through a kv.Store and caches the
// current value for hot-path reads.
type SettingsStore struct {
	store kv.Store

	mu      sync.RWMutex
	current Settings
}

// NewSettingsStore returns a store primed with DefaultSettings. Call Load to
// pick up persisted values.
func NewSettingsStore(store kv.Store) *SettingsStore {
	return &SettingsStore{store: store, current: DefaultSettings()}
}

// Load reads persisted settings. A missing key keeps the defaults.
func (s *SettingsStore) Load(ctx context.Context) (Settings, error) {
	var loaded Settings
	err := kv.GetJSON(ctx, s.store, SettingsKey, &loaded)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		loaded = DefaultSettings()
	case err != nil:
		return s.Get(), fmt.Errorf("load settings: %w", err)
	}
	loaded = loaded.Normalize()

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return loaded, nil
}

// Get returns the cached settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// BatchSize returns the effective fetch batch size.
func (s *SettingsStore) BatchSize() int {
	return s.Get().FetchBatchSize
}

// Put normalizes and persists next, then makes it current.
func (s *SettingsStore) Put(ctx context.Context, next Settings) (Settings, error) {
	next = next.Normalize()
	if err := kv.SetJSON(ctx, s.store, SettingsKey, next); err != nil {
		return s.Get(), fmt.Errorf("save settings: %w", err)
	}
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
