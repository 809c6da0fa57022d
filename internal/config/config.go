// Package config defines service configuration and its layered loading.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the recompute job queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of recompute workers; 0 picks a CPU-based default.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the remembered feedback submission ids.
	DedupeSize int `koanf:"dedupe_size"`

	// ShardCount configures the number of shards in the memory store.
	ShardCount int `koanf:"shard_count"`

	// PollIntervalMS is how often live events are recomputed.
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// FeedbackRetentionMin is how long feedback is kept.
	FeedbackRetentionMin int `koanf:"feedback_retention_min"`

	// TraceEngine logs the engine's intermediate values at debug level.
	TraceEngine bool `koanf:"trace_engine"`

	// StoreDriver selects the repository: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is the SQLite DSN when StoreDriver is sqlite.
	StoreDSN string `koanf:"store_dsn"`

	// RedisAddr enables the Redis snapshot cache when set.
	RedisAddr string `koanf:"redis_addr"`

	// RedisSnapshotTTLSec is the snapshot key expiry.
	RedisSnapshotTTLSec int `koanf:"redis_snapshot_ttl_sec"`

	// KafkaBrokers is a comma separated broker list; set enables transition notifications.
	KafkaBrokers string `koanf:"kafka_brokers"`

	// KafkaTopic receives stage transitions.
	KafkaTopic string `koanf:"kafka_topic"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		QueueSize:            10_000,
		WorkerCount:          runtime.NumCPU() * 2,
		DedupeSize:           500_000,
		ShardCount:           16,
		PollIntervalMS:       30_000,
		FeedbackRetentionMin: 120,
		TraceEngine:          false,
		StoreDriver:          StoreMemory,
		StoreDSN:             "",
		RedisAddr:            "",
		RedisSnapshotTTLSec:  3600,
		KafkaBrokers:         "",
		KafkaTopic:           "crowdpulse.transitions",
	}
}

// PollInterval returns PollIntervalMS as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// FeedbackRetention returns FeedbackRetentionMin as a duration.
func (c *Config) FeedbackRetention() time.Duration {
	return time.Duration(c.FeedbackRetentionMin) * time.Minute
}

// RedisSnapshotTTL returns RedisSnapshotTTLSec as a duration.
func (c *Config) RedisSnapshotTTL() time.Duration {
	return time.Duration(c.RedisSnapshotTTLSec) * time.Second
}

// Brokers splits KafkaBrokers, dropping blanks.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be > 0", ErrInvalidConfig)
	}
	if c.WorkerCount < 0 {
		return fmt.Errorf("%w: worker_count must be >= 0", ErrInvalidConfig)
	}
	if c.ShardCount <= 0 {
		return fmt.Errorf("%w: shard_count must be > 0", ErrInvalidConfig)
	}
	if c.PollIntervalMS <= 0 {
		return fmt.Errorf("%w: poll_interval_ms must be > 0", ErrInvalidConfig)
	}
	if c.FeedbackRetentionMin < 0 {
		return fmt.Errorf("%w: feedback_retention_min must be >= 0", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("%w: store_driver must be %q or %q", ErrInvalidConfig, StoreMemory, StoreSQLite)
	}
	if len(c.Brokers()) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("%w: kafka_topic required with kafka_brokers", ErrInvalidConfig)
	}
	return nil
}
