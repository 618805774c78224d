// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/xgrab/internal/log"
)

// Environment variable names.
const (
	EnvLogLevel       = "XGRAB_LOG_LEVEL"
	EnvListen         = "XGRAB_LISTEN"
	EnvDataDir        = "XGRAB_DATA"
	EnvOutputDir      = "XGRAB_OUTPUT_DIR"
	EnvStoreBackend   = "XGRAB_STORE_BACKEND"
	EnvStorePath      = "XGRAB_STORE_PATH"
	EnvRedisAddr      = "XGRAB_REDIS_ADDR"
	EnvRedisPassword  = "XGRAB_REDIS_PASSWORD"
	EnvRedisDB        = "XGRAB_REDIS_DB"
	EnvResolverURL    = "XGRAB_RESOLVER_URL"
	EnvResolverParam  = "XGRAB_RESOLVER_CODE_PARAM"
	EnvResolverRPS    = "XGRAB_RESOLVER_RPS"
	EnvHTTPTimeout    = "XGRAB_HTTP_TIMEOUT"
	EnvProbeRPS       = "XGRAB_PROBE_RPS"
	EnvShutdownGrace  = "XGRAB_SHUTDOWN_GRACE"
	EnvOTelEnabled    = "XGRAB_OTEL_ENABLED"
	EnvOTelExporter   = "XGRAB_OTEL_EXPORTER"
	EnvOTelEndpoint   = "XGRAB_OTEL_ENDPOINT"
	EnvOTelSampling   = "XGRAB_OTEL_SAMPLING_RATE"
	EnvRateLimitRPM   = "XGRAB_RATELIMIT_RPM"
	envPrefix         = "XGRAB_"
	sensitiveEnvMatch = "password"
)

// ParseString reads a string from environment variable or returns default value.
// An empty variable counts as unset.
func ParseString(key, defaultValue string) string {
	return parseEnv(log.WithComponent("config"), key, defaultValue, func(v string) (string, bool) { return v, true })
}

// ParseInt reads an integer from environment variable or returns default value.
// It falls back to default on parse errors.
func ParseInt(key string, defaultValue int) int {
	return parseEnv(log.WithComponent("config"), key, defaultValue, func(v string) (int, bool) {
		i, err := strconv.Atoi(v)
		return i, err == nil
	})
}

// ParseFloat reads a float64 from environment variable or returns default value.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseEnv(log.WithComponent("config"), key, defaultValue, func(v string) (float64, bool) {
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	})
}

// ParseDuration reads a duration in Go format (e.g. "5s").
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(log.WithComponent("config"), key, defaultValue, func(v string) (time.Duration, bool) {
		d, err := time.ParseDuration(v)
		return d, err == nil
	})
}

// ParseBool accepts "true", "false", "1", "0", "yes", "no" (case-insensitive).
func ParseBool(key string, defaultValue bool) bool {
	return parseEnv(log.WithComponent("config"), key, defaultValue, func(v string) (bool, bool) {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		default:
			return false, false
		}
	})
}

// parseEnv logs where each value came from. Sensitive values are never logged.
func parseEnv[T any](logger zerolog.Logger, key string, defaultValue T, parse func(string) (T, bool)) T {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logger.Debug().
			Str("key", key).
			Interface("default", redact(key, defaultValue)).
			Str("source", "default").
			Msg("using default value")
		return defaultValue
	}
	parsed, valid := parse(v)
	if !valid {
		logger.Warn().
			Str("key", key).
			Interface("value", redact(key, v)).
			Interface("default", redact(key, defaultValue)).
			Msg("invalid value in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Interface("value", redact(key, parsed)).
		Str("source", "environment").
		Msg("using environment variable")
	return parsed
}

func redact(key string, v any) any {
	if strings.Contains(strings.ToLower(key), sensitiveEnvMatch) {
		return "***"
	}
	return v
}

// UnknownEnvKeys lists XGRAB_* variables the loader did not consume.
func UnknownEnvKeys(consumed map[string]struct{}) []string {
	var unknown []string
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(name, envPrefix) {
			continue
		}
		if _, ok := consumed[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}
