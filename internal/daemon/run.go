// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"fmt"
	"os"

	"github.com/ManuGH/xgrab/internal/api"
	"github.com/ManuGH/xgrab/internal/config"
	"github.com/ManuGH/xgrab/internal/health"
	"github.com/ManuGH/xgrab/internal/log"
)

// Options select the configuration source.
type Options struct {
	ConfigPath string
	Version    string
}

// Run loads configuration, builds every component and serves until ctx is
// cancelled.
func Run(ctx context.Context, opts Options) error {
	loader := config.NewLoader(opts.ConfigPath, opts.Version)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Output: os.Stdout, Version: opts.Version})
	logger := log.WithComponent("daemon")
	logger.Info().
		Str("event", "daemon.starting").
		Str("version", opts.Version).
		Str("listen", cfg.ListenAddr).
		Str("config", opts.ConfigPath).
		Msg("starting xgrab")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		return err
	}

	comps, err := Build(ctx, cfg)
	if err != nil {
		return err
	}

	tracingService := ""
	if cfg.Telemetry.Enabled {
		tracingService = "xgrab-api"
	}
	srv := api.New(api.Deps{
		Orchestrator: comps.Orchestrator,
		Catalog:      comps.Catalog,
		Tracker:      comps.Tracker,
		Settings:     comps.Settings,
		Scanner:      comps.Scanner,
		Health:       comps.Health,
	}, api.Options{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		TracingService:    tracingService,
		EnableMetrics:     true,
		EnableLogging:     true,
	})

	mgr, err := NewManager(DefaultServerConfig(cfg.ListenAddr, cfg.HTTP.ShutdownGrace), srv.Handler(), logger)
	if err != nil {
		_ = comps.Close(ctx)
		return err
	}
	mgr.RegisterShutdownHook("components", comps.Close)

	return NewApp(logger, mgr, config.NewHolder(cfg, loader), comps).Run(ctx)
}
