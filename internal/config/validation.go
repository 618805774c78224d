// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/xgrab/internal/kv"
)

// Validate checks cfg and reports every violation at once. The returned
// error wraps ErrInvalidConfig.
func Validate(cfg AppConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil || cfg.LogLevel == "" {
		add("logLevel: unknown level %q", cfg.LogLevel)
	}
	if _, port, err := net.SplitHostPort(cfg.ListenAddr); err != nil || port == "" {
		add("listenAddr: %q is not host:port", cfg.ListenAddr)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		add("dataDir: must not be empty")
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		add("outputDir: must not be empty")
	}

	switch strings.ToLower(cfg.Store.Backend) {
	case kv.BackendMemory, kv.BackendBadger, kv.BackendSQLite:
	case kv.BackendRedis:
		if cfg.Store.RedisAddr == "" {
			add("store.redisAddr: required for redis backend")
		}
		if cfg.Store.RedisDB < 0 {
			add("store.redisDB: must be >= 0")
		}
	default:
		add("store.backend: unknown backend %q", cfg.Store.Backend)
	}

	if u, err := url.Parse(cfg.PageResolver.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("pageResolver.baseURL: %q is not an http(s) URL", cfg.PageResolver.BaseURL)
	}
	if strings.TrimSpace(cfg.PageResolver.CodeParam) == "" {
		add("pageResolver.codeParam: must not be empty")
	}
	if cfg.PageResolver.RatePerSecond <= 0 {
		add("pageResolver.ratePerSecond: must be > 0")
	}

	if cfg.HTTP.Timeout <= 0 {
		add("http.timeout: must be > 0")
	}
	if cfg.HTTP.ProbeRPS <= 0 {
		add("http.probeRPS: must be > 0")
	}
	if cfg.HTTP.ShutdownGrace <= 0 {
		add("http.shutdownGrace: must be > 0")
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			add("telemetry.exporter: %q must be grpc or http", cfg.Telemetry.Exporter)
		}
		if cfg.Telemetry.Endpoint == "" {
			add("telemetry.endpoint: required when telemetry is enabled")
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		add("telemetry.samplingRate: %v outside [0,1]", cfg.Telemetry.SamplingRate)
	}

	if cfg.RateLimit.RequestsPerMinute <= 0 {
		add("rateLimit.requestsPerMinute: must be > 0")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
