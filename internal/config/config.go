// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"path/filepath"
	"time"

	"github.com/ManuGH/xgrab/internal/kv"
	"github.com/ManuGH/xgrab/internal/pageresolve"
	"github.com/ManuGH/xgrab/internal/telemetry"
)

// Defaults.
const (
	DefaultLogLevel      = "info"
	DefaultListenAddr    = "127.0.0.1:8089"
	DefaultDataDir       = "./data"
	DefaultOutputDir     = "./downloads"
	DefaultStoreBackend  = kv.BackendBadger
	DefaultHTTPTimeout   = 30 * time.Second
	DefaultProbeRPS      = 5
	DefaultOTLPExporter  = "grpc"
	DefaultOTLPEndpoint  = "localhost:4317"
	DefaultSamplingRate  = 1.0
	DefaultRateLimitRPM  = 600
	DefaultShutdownGrace = 10 * time.Second
)

// AppConfig is the resolved process configuration.
type AppConfig struct {
	Version    string
	LogLevel   string
	ListenAddr string
	DataDir    string
	OutputDir  string

	Store        StoreConfig
	PageResolver PageResolverConfig
	HTTP         HTTPConfig
	Telemetry    TelemetryConfig
	RateLimit    RateLimitConfig
}

// StoreConfig selects the durable backend.
type StoreConfig struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// PageResolverConfig configures the page-to-direct-URL service.
type PageResolverConfig struct {
	BaseURL       string
	CodeParam     string
	RatePerSecond float64
}

// HTTPConfig tunes outbound requests and server shutdown.
type HTTPConfig struct {
	Timeout       time.Duration
	ProbeRPS      float64
	ShutdownGrace time.Duration
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// RateLimitConfig limits API ingestion per client IP.
type RateLimitConfig struct {
	RequestsPerMinute int
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		LogLevel:   DefaultLogLevel,
		ListenAddr: DefaultListenAddr,
		DataDir:    DefaultDataDir,
		OutputDir:  DefaultOutputDir,
		Store:      StoreConfig{Backend: DefaultStoreBackend},
		PageResolver: PageResolverConfig{
			BaseURL:       pageresolve.DefaultBaseURL,
			CodeParam:     pageresolve.DefaultCodeParam,
			RatePerSecond: pageresolve.DefaultRatePerSec,
		},
		HTTP: HTTPConfig{
			Timeout:       DefaultHTTPTimeout,
			ProbeRPS:      DefaultProbeRPS,
			ShutdownGrace: DefaultShutdownGrace,
		},
		Telemetry: TelemetryConfig{
			Exporter:     DefaultOTLPExporter,
			Endpoint:     DefaultOTLPEndpoint,
			SamplingRate: DefaultSamplingRate,
		},
		RateLimit: RateLimitConfig{RequestsPerMinute: DefaultRateLimitRPM},
	}
}

// KV returns the kv.Config for the store section. An empty path resolves to
// DataDir/state.
func (c AppConfig) KV() kv.Config {
	path := c.Store.Path
	if path == "" {
		path = filepath.Join(c.DataDir, "state")
	}
	return kv.Config{
		Backend:       c.Store.Backend,
		Path:          path,
		RedisAddr:     c.Store.RedisAddr,
		RedisPassword: c.Store.RedisPassword,
		RedisDB:       c.Store.RedisDB,
	}
}

// Tracing returns the telemetry.Config for the telemetry section.
func (c AppConfig) Tracing() telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    "xgrab",
		ServiceVersion: c.Version,
		ExporterType:   c.Telemetry.Exporter,
		Endpoint:       c.Telemetry.Endpoint,
		SamplingRate:   c.Telemetry.SamplingRate,
	}
}

// PageResolve returns the pageresolve.Config for the resolver section.
func (c AppConfig) PageResolve() pageresolve.Config {
	return pageresolve.Config{
		BaseURL:       c.PageResolver.BaseURL,
		CodeParam:     c.PageResolver.CodeParam,
		RatePerSecond: c.PageResolver.RatePerSecond,
	}
}

// FileConfig mirrors the YAML file. Pointer fields distinguish "unset" from
// an explicit zero.
type FileConfig struct {
	LogLevel   string `yaml:"logLevel,omitempty"`
	ListenAddr string `yaml:"listenAddr,omitempty"`
	DataDir    string `yaml:"dataDir,omitempty"`
	OutputDir  string `yaml:"outputDir,omitempty"`

	Store struct {
		Backend       string `yaml:"backend,omitempty"`
		Path          string `yaml:"path,omitempty"`
		RedisAddr     string `yaml:"redisAddr,omitempty"`
		RedisPassword string `yaml:"redisPassword,omitempty"`
		RedisDB       *int   `yaml:"redisDB,omitempty"`
	} `yaml:"store,omitempty"`

	PageResolver struct {
		BaseURL       string   `yaml:"baseURL,omitempty"`
		CodeParam     string   `yaml:"codeParam,omitempty"`
		RatePerSecond *float64 `yaml:"ratePerSecond,omitempty"`
	} `yaml:"pageResolver,omitempty"`

	HTTP struct {
		Timeout       string   `yaml:"timeout,omitempty"`
		ProbeRPS      *float64 `yaml:"probeRPS,omitempty"`
		ShutdownGrace string   `yaml:"shutdownGrace,omitempty"`
	} `yaml:"http,omitempty"`

	Telemetry struct {
		Enabled      *bool    `yaml:"enabled,omitempty"`
		Exporter     string   `yaml:"exporter,omitempty"`
		Endpoint     string   `yaml:"endpoint,omitempty"`
		SamplingRate *float64 `yaml:"samplingRate,omitempty"`
	} `yaml:"telemetry,omitempty"`

	RateLimit struct {
		RequestsPerMinute *int `yaml:"requestsPerMinute,omitempty"`
	} `yaml:"rateLimit,omitempty"`
}
