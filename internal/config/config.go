// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"runtime"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFile, when set, adds a rotating JSON log file.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ScoreTTL is how long a computed score stays fresh.
	ScoreTTL time.Duration `koanf:"score_ttl"`

	// PlatformConcurrency bounds concurrent adapter calls per refresh.
	PlatformConcurrency int `koanf:"platform_concurrency"`

	// BatchSize is the number of students refreshed concurrently by RefreshBatch.
	BatchSize int `koanf:"batch_size"`

	// QueueSize bounds the async refresh job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of refresh workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the number of tracked in-flight refresh jobs.
	DedupeSize int `koanf:"dedupe_size"`

	// Store selects the document store: memory or postgres.
	Store string `koanf:"store"`

	// PostgresDSN is required when Store is postgres.
	PostgresDSN string `koanf:"postgres_dsn"`

	// RedisURL enables the Redis score cache when non-empty.
	RedisURL string `koanf:"redis_url"`

	// RefreshCron schedules a refresh of every student; empty disables it.
	RefreshCron string `koanf:"refresh_cron"`

	// AdapterTimeout bounds a single platform fetch.
	AdapterTimeout time.Duration `koanf:"adapter_timeout"`

	// AdapterRateLimit is requests per second per platform endpoint; 0 disables pacing.
	AdapterRateLimit float64 `koanf:"adapter_rate_limit"`

	// AdapterURLs maps a platform name to a URL template containing {handle}.
	AdapterURLs map[string]string `koanf:"adapter_urls"`

	// TracingEnabled installs the OpenTelemetry tracer provider.
	TracingEnabled bool `koanf:"tracing_enabled"`

	// TracingEndpoint sends spans over OTLP/HTTP instead of stdout.
	TracingEndpoint string `koanf:"tracing_endpoint"`

	// MaxLeaderboardLimit caps the limit parameter of GET /leaderboard and
	// GET /students/{id}/history.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		ScoreTTL:            7 * 24 * time.Hour,
		PlatformConcurrency: 6,
		BatchSize:           10,
		QueueSize:           10_000,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          50_000,
		Store:               StoreMemory,
		RefreshCron:         "@every 24h",
		AdapterTimeout:      15 * time.Second,
		AdapterRateLimit:    2,
		AdapterURLs:         map[string]string{},
		MaxLeaderboardLimit: 100,
	}
}
