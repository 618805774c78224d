// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"

	"github.com/ManuGH/xgrab/internal/config"
	"github.com/ManuGH/xgrab/internal/log"
)

// PerformStartupChecks prepares and validates the directories the daemon
// writes to before anything is served.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Str("event", "startup.checks_begin").Msg("running pre-flight startup checks")

	dirs := []struct{ name, path string }{
		{"data directory", cfg.DataDir},
		{"output directory", cfg.OutputDir},
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d.path, 0o750); err != nil {
			return fmt.Errorf("%s %s: %w", d.name, d.path, err)
		}
		if err := checkWritableDir(d.path); err != nil {
			return fmt.Errorf("%s %s is not writable: %w", d.name, d.path, err)
		}
		logger.Info().Str("path", d.path).Msg(d.name + " is writable")
	}

	logger.Info().Str("event", "startup.checks_passed").Msg("all startup checks passed")
	return nil
}
