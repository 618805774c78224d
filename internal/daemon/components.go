// SPDX-License-Identifier: MIT

// Package daemon wires the long-lived components together and owns their
// lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ManuGH/xgrab/internal/catalog"
	"github.com/ManuGH/xgrab/internal/config"
	"github.com/ManuGH/xgrab/internal/domscan"
	"github.com/ManuGH/xgrab/internal/fetch"
	"github.com/ManuGH/xgrab/internal/health"
	"github.com/ManuGH/xgrab/internal/hls"
	"github.com/ManuGH/xgrab/internal/kv"
	"github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/orchestrator"
	"github.com/ManuGH/xgrab/internal/pageresolve"
	"github.com/ManuGH/xgrab/internal/telemetry"
	"github.com/ManuGH/xgrab/internal/transfer"
)

// Components are the runtime objects built from one configuration.
type Components struct {
	Config       config.AppConfig
	Store        kv.Store
	Catalog      *catalog.Catalog
	Tracker      *transfer.Tracker
	Settings     *config.SettingsStore
	Client       *fetch.Client
	Prober       *fetch.Prober
	Pages        *pageresolve.Client
	Scanner      *domscan.Scanner
	Orchestrator *orchestrator.Orchestrator
	Health       *health.Manager
	Telemetry    *telemetry.Provider

	logger zerolog.Logger
}

// Build opens the store, restores persisted state and assembles every
// component. The caller must Close the result.
func Build(ctx context.Context, cfg config.AppConfig) (*Components, error) {
	logger := log.WithComponent("daemon")

	tp, err := telemetry.NewProvider(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	store, err := kv.Open(cfg.KV())
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	c := &Components{Config: cfg, Store: store, Telemetry: tp, logger: logger}

	c.Settings = config.NewSettingsStore(store)
	if _, err := c.Settings.Load(ctx); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "settings.load_failed").Msg("using default operator settings")
	}

	c.Catalog = catalog.New(store)
	if err := c.Catalog.Load(ctx); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "catalog.load_failed").Msg("starting with an empty catalog")
	}
	c.Tracker = transfer.NewTracker(store)

	hc := fetch.NewHTTPClient(cfg.HTTP.Timeout)
	c.Client = fetch.NewClient(hc)
	c.Prober = fetch.NewProber(hc, cfg.HTTP.ProbeRPS)
	c.Scanner = domscan.NewScanner(hc)

	c.Pages, err = pageresolve.New(cfg.PageResolve(), hc)
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("init page resolver: %w", err)
	}

	sink, err := orchestrator.NewFileSink(cfg.OutputDir)
	if err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("init output dir: %w", err)
	}

	c.Orchestrator = orchestrator.New(c.Catalog, c.Tracker, hls.NewResolver(c.Client), c.Client, sink,
		orchestrator.WithPageResolver(c.Pages),
		orchestrator.WithPageWatcher(c.Scanner),
		orchestrator.WithProber(c.Prober),
		orchestrator.WithBatchSize(c.Settings.BatchSize),
	)

	c.Health = health.NewManager(cfg.Version)
	c.Health.RegisterChecker(health.NewStoreChecker(cfg.Store.Backend, store))
	c.Health.RegisterChecker(health.NewDirChecker("output_dir", cfg.OutputDir))
	c.Health.RegisterChecker(health.NewBreakerChecker("page_resolver", c.Pages))

	logger.Info().
		Str(log.FieldEvent, "daemon.components_ready").
		Str("store", cfg.Store.Backend).
		Int("catalog_size", c.Catalog.Len()).
		Int("batch_size", c.Settings.BatchSize()).
		Msg("components ready")
	return c, nil
}

// Close cancels running transfers, then releases the store and flushes
// traces.
func (c *Components) Close(ctx context.Context) error {
	var errs []error
	if c.Orchestrator != nil {
		if err := c.Orchestrator.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close orchestrator: %w", err))
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if err := c.Telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	return errors.Join(errs...)
}
