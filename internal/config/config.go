// Package config provides configuration loading and validation for the
// atomd daemon.
//
// Configuration file: /etc/atomd/config.yaml (default).
//
// Invalid config on startup: the daemon refuses to start (fatal error).
// There is no hot-reload path here: the engine's own tunables (quality
// weights, tier thresholds, margins) already have a dedicated two-phase
// propose/commit path (pkg/atom's ConfigProposal) gated by an on-chain
// authority, so this file only covers daemon-operational settings that
// change rarely and carry no such authority model.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for atomd.
type Config struct {
	// NodeID identifies this daemon instance in logs and metrics labels.
	// Default: hostname.
	NodeID string `yaml:"node_id"`

	// Authority is the hex-encoded atom.AgentID that owns engine config
	// propose/commit calls (pkg/atom's init_config authority). Required.
	Authority string `yaml:"authority"`

	HTTP          HTTPConfig          `yaml:"http"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Ingest        IngestConfig        `yaml:"ingest"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// HTTPConfig holds the API listener settings.
type HTTPConfig struct {
	// Addr is the HTTP bind address. Default: 0.0.0.0:8080.
	Addr string `yaml:"addr"`

	// AllowedOrigins is the CORS allow-list. Default: * (all origins).
	AllowedOrigins string `yaml:"allowed_origins"`

	// AuthToken gates write routes with a bearer token. Empty disables
	// auth, which is only acceptable in local development.
	AuthToken string `yaml:"auth_token"`
}

// PostgresConfig holds the persistence layer's connection settings.
type PostgresConfig struct {
	// DSN is the Postgres connection string. Required.
	DSN string `yaml:"dsn"`
}

// IngestConfig holds the submission queue and poller's tuning knobs.
type IngestConfig struct {
	// QueueCapacity bounds the in-memory submission channel.
	// Default: 4096.
	QueueCapacity int `yaml:"queue_capacity"`

	// TickInterval is validated on load (>= 1ms) but is not passed to the
	// poller: ingest.NewPoller always drains the queue every 50ms.
	// Default: 50ms.
	TickInterval time.Duration `yaml:"tick_interval"`

	// MaxPerTick is validated on load (>= 1) but is not passed to the
	// poller: ingest.NewPoller always processes at most 200 submissions
	// per tick.
	// Default: 200.
	MaxPerTick int `yaml:"max_per_tick"`
}

// RateLimitConfig holds the per-IP token bucket's parameters.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate allowed per client IP.
	// Default: 60.
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// Burst is the token bucket's capacity. Default: 10.
	Burst int `yaml:"burst"`
}

// ObservabilityConfig holds logging parameters.
type ObservabilityConfig struct {
	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		NodeID: hostname,
		HTTP: HTTPConfig{
			Addr:           "0.0.0.0:8080",
			AllowedOrigins: "*",
		},
		Ingest: IngestConfig{
			QueueCapacity: 4096,
			TickInterval:  50 * time.Millisecond,
			MaxPerTick:    200,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load reads and validates a config file from the given path, merging
// file values over the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness, collecting every
// violation rather than stopping at the first.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if len(cfg.Authority) != 64 {
		errs = append(errs, fmt.Sprintf("authority must be 64 hex characters (32 bytes), got %d chars", len(cfg.Authority)))
	}
	if cfg.HTTP.Addr == "" {
		errs = append(errs, "http.addr must not be empty")
	}
	if cfg.Postgres.DSN == "" {
		errs = append(errs, "postgres.dsn must not be empty")
	}
	if cfg.Ingest.QueueCapacity < 1 {
		errs = append(errs, fmt.Sprintf("ingest.queue_capacity must be >= 1, got %d", cfg.Ingest.QueueCapacity))
	}
	if cfg.Ingest.TickInterval < time.Millisecond {
		errs = append(errs, fmt.Sprintf("ingest.tick_interval must be >= 1ms, got %s", cfg.Ingest.TickInterval))
	}
	if cfg.Ingest.MaxPerTick < 1 {
		errs = append(errs, fmt.Sprintf("ingest.max_per_tick must be >= 1, got %d", cfg.Ingest.MaxPerTick))
	}
	if cfg.RateLimit.RequestsPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("rate_limit.requests_per_minute must be >= 1, got %d", cfg.RateLimit.RequestsPerMinute))
	}
	if cfg.RateLimit.Burst < 1 {
		errs = append(errs, fmt.Sprintf("rate_limit.burst must be >= 1, got %d", cfg.RateLimit.Burst))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}

func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
