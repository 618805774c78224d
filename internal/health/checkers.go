// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/xgrab/internal/resilience"
)

const storePingTimeout = 2 * time.Second

// Pinger is satisfied by kv.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker reports the durable store unhealthy when it stops answering.
type StoreChecker struct {
	name  string
	store Pinger
}

// NewStoreChecker creates a checker for the given store backend.
func NewStoreChecker(backend string, store Pinger) *StoreChecker {
	return &StoreChecker{name: "store_" + backend, store: store}
}

func (c *StoreChecker) Name() string { return c.name }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, storePingTimeout)
	defer cancel()
	if err := c.store.Ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "store ping failed"}
	}
	return CheckResult{Status: StatusHealthy, Message: "store reachable"}
}

// BreakerSource exposes a circuit breaker state.
type BreakerSource interface {
	BreakerState() resilience.State
}

// BreakerChecker reports an open circuit as degraded. The rest of the
// system keeps working without the guarded dependency.
type BreakerChecker struct {
	name   string
	source BreakerSource
}

// NewBreakerChecker creates a checker for a breaker-guarded dependency.
func NewBreakerChecker(name string, source BreakerSource) *BreakerChecker {
	return &BreakerChecker{name: name, source: source}
}

func (c *BreakerChecker) Name() string { return c.name }

func (c *BreakerChecker) Check(context.Context) CheckResult {
	switch state := c.source.BreakerState(); state {
	case resilience.StateClosed:
		return CheckResult{Status: StatusHealthy, Message: "circuit closed"}
	default:
		return CheckResult{Status: StatusDegraded, Message: "circuit " + string(state)}
	}
}

// DirChecker verifies that a directory exists and accepts writes.
type DirChecker struct {
	name string
	path string
}

// NewDirChecker creates a checker for a writable directory.
func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(context.Context) CheckResult {
	if err := checkWritableDir(c.path); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.path}
	}
	return CheckResult{Status: StatusHealthy, Message: "directory writable"}
}

func checkWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "stat", Path: path, Err: os.ErrInvalid}
	}
	probe, err := os.CreateTemp(path, ".write_test*")
	if err != nil {
		return err
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(filepath.Clean(name))
}
