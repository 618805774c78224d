// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/xgrab/internal/config"
	"github.com/ManuGH/xgrab/internal/log"
)

// App owns the background subsystems (config watcher, reload wiring,
// catalog janitor) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      *Manager
	holder       *config.Holder
	comps        *Components
	reloadSignal os.Signal
}

// NewApp creates a new App.
func NewApp(logger zerolog.Logger, manager *Manager, holder *config.Holder, comps *Components) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		holder:       holder,
		comps:        comps,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts every owned subsystem and blocks until ctx is cancelled or a
// fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	g, ctx := errgroup.WithContext(ctx)

	if a.holder != nil {
		// Best-effort: a missing watcher only disables hot reload.
		if err := a.holder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		defer a.holder.Stop()

		updates := make(chan config.AppConfig, 1)
		a.holder.RegisterListener(updates)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-updates:
					a.apply(cfg)
				}
			}
		})

		if a.reloadSignal != nil {
			g.Go(func() error {
				hup := make(chan os.Signal, 1)
				signal.Notify(hup, a.reloadSignal)
				defer signal.Stop(hup)
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-hup:
						a.logger.Info().Str("event", "config.reload_signal").Msg("received reload signal, reloading config")
						if err := a.holder.Reload(ctx); err != nil {
							a.logger.Warn().Err(err).Str("event", "config.reload_failed").Msg("config reload failed")
						}
					}
				}
			})
		}
	}

	if a.comps != nil {
		g.Go(func() error {
			a.comps.Catalog.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		return a.manager.Start(ctx)
	})
	return g.Wait()
}

// apply takes over the settings that are safe to change at runtime.
func (a *App) apply(cfg config.AppConfig) {
	if log.SetLevel(cfg.LogLevel) {
		a.logger.Info().Str("event", "config.applied").Str("log_level", cfg.LogLevel).Msg("log level updated")
	}
}
