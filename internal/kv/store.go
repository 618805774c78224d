// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package kv is the durable key-value layer behind the catalog, transfer
// state and operator settings.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store is a byte-oriented key-value store. Implementations must be safe for
// concurrent use. Callers must not assume read-after-write visibility across
// processes.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Path          string // badger directory or sqlite file directory
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Open returns the store for cfg.Backend. An empty backend is memory.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendBadger:
		if cfg.Path == "" {
			return nil, fmt.Errorf("kv: badger backend requires a path")
		}
		return OpenBadgerStore(cfg.Path)
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("kv: redis backend requires an address")
		}
		return OpenRedisStore(RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("kv: sqlite backend requires a path")
		}
		return OpenSQLiteStore(filepath.Join(cfg.Path, "xgrab.db"), DefaultSQLiteConfig())
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", cfg.Backend)
	}
}

// GetJSON loads key into v. It returns ErrNotFound when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return nil
}

// SetJSON stores v as JSON under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
