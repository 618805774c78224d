// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/xgrab/internal/log"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty configPath skips the file stage.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults, then
// validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	for _, key := range UnknownEnvKeys(l.ConsumedEnvKeys) {
		logger := log.WithComponent("config")
		logger.Warn().Str("key", key).Msg("unknown XGRAB_ environment variable ignored")
	}

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	setString(&dst.LogLevel, src.LogLevel)
	setString(&dst.ListenAddr, src.ListenAddr)
	setString(&dst.DataDir, os.ExpandEnv(src.DataDir))
	setString(&dst.OutputDir, os.ExpandEnv(src.OutputDir))

	setString(&dst.Store.Backend, src.Store.Backend)
	setString(&dst.Store.Path, os.ExpandEnv(src.Store.Path))
	setString(&dst.Store.RedisAddr, src.Store.RedisAddr)
	setString(&dst.Store.RedisPassword, os.ExpandEnv(src.Store.RedisPassword))
	setPtr(&dst.Store.RedisDB, src.Store.RedisDB)

	setString(&dst.PageResolver.BaseURL, src.PageResolver.BaseURL)
	setString(&dst.PageResolver.CodeParam, src.PageResolver.CodeParam)
	setPtr(&dst.PageResolver.RatePerSecond, src.PageResolver.RatePerSecond)

	if err := setDuration(&dst.HTTP.Timeout, "http.timeout", src.HTTP.Timeout); err != nil {
		return err
	}
	if err := setDuration(&dst.HTTP.ShutdownGrace, "http.shutdownGrace", src.HTTP.ShutdownGrace); err != nil {
		return err
	}
	setPtr(&dst.HTTP.ProbeRPS, src.HTTP.ProbeRPS)

	setPtr(&dst.Telemetry.Enabled, src.Telemetry.Enabled)
	setString(&dst.Telemetry.Exporter, src.Telemetry.Exporter)
	setString(&dst.Telemetry.Endpoint, src.Telemetry.Endpoint)
	setPtr(&dst.Telemetry.SamplingRate, src.Telemetry.SamplingRate)

	setPtr(&dst.RateLimit.RequestsPerMinute, src.RateLimit.RequestsPerMinute)
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString(EnvLogLevel, cfg.LogLevel)
	cfg.ListenAddr = l.envString(EnvListen, cfg.ListenAddr)
	cfg.DataDir = l.envString(EnvDataDir, cfg.DataDir)
	cfg.OutputDir = l.envString(EnvOutputDir, cfg.OutputDir)

	cfg.Store.Backend = l.envString(EnvStoreBackend, cfg.Store.Backend)
	cfg.Store.Path = l.envString(EnvStorePath, cfg.Store.Path)
	cfg.Store.RedisAddr = l.envString(EnvRedisAddr, cfg.Store.RedisAddr)
	cfg.Store.RedisPassword = l.envString(EnvRedisPassword, cfg.Store.RedisPassword)
	cfg.Store.RedisDB = l.envInt(EnvRedisDB, cfg.Store.RedisDB)

	cfg.PageResolver.BaseURL = l.envString(EnvResolverURL, cfg.PageResolver.BaseURL)
	cfg.PageResolver.CodeParam = l.envString(EnvResolverParam, cfg.PageResolver.CodeParam)
	cfg.PageResolver.RatePerSecond = l.envFloat(EnvResolverRPS, cfg.PageResolver.RatePerSecond)

	cfg.HTTP.Timeout = l.envDuration(EnvHTTPTimeout, cfg.HTTP.Timeout)
	cfg.HTTP.ProbeRPS = l.envFloat(EnvProbeRPS, cfg.HTTP.ProbeRPS)
	cfg.HTTP.ShutdownGrace = l.envDuration(EnvShutdownGrace, cfg.HTTP.ShutdownGrace)

	cfg.Telemetry.Enabled = l.envBool(EnvOTelEnabled, cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvOTelExporter, cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvOTelEndpoint, cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvOTelSampling, cfg.Telemetry.SamplingRate)

	cfg.RateLimit.RequestsPerMinute = l.envInt(EnvRateLimitRPM, cfg.RateLimit.RequestsPerMinute)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, field, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
