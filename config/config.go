// Package config loads the daemon's YAML configuration file: engine
// tuning, the storage backend to bind, and the strategy to run.
package config

import (
	"fmt"
	"time"
)

// Config represents a throttlekeep.yaml configuration file. All fields are
// optional; zero values fall through to the tracker package's defaults.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Storage  StorageConfig  `yaml:"storage"`
	Strategy StrategyConfig `yaml:"strategy"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// EngineConfig holds tracker tuning defaults from the config file. Limit,
// DeferInterval, and ExpireTime are pointers so that an omitted key (nil)
// can be told apart from an explicit zero, which buildTracker relies on
// to pass tracker.Config's own zero-vs-unset distinction through from
// YAML unchanged.
type EngineConfig struct {
	Limit              *int64    `yaml:"limit"`
	DeferInterval      *Duration `yaml:"defer_interval"`
	ExpireTime         *Duration `yaml:"expire_time"`
	MaxKeys            int64     `yaml:"max_keys"`
	ProcessingInterval Duration  `yaml:"processing_interval"`
	MaxRetries         int       `yaml:"max_retries"`
	RetryDelay         Duration  `yaml:"retry_delay"`
}

// StorageConfig selects and configures the backing storage adapter.
type StorageConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend string `yaml:"backend"`

	PurgeInterval Duration `yaml:"purge_interval"`

	RedisURL            string   `yaml:"redis_url"`
	RedisPrefix         string   `yaml:"redis_prefix"`
	RedisDialTimeout    Duration `yaml:"redis_dial_timeout"`
	RedisCommandTimeout Duration `yaml:"redis_command_timeout"`
}

// StrategyConfig selects and configures the throttling strategy.
type StrategyConfig struct {
	// Type is "simple" (default), "token-bucket", or "sliding-window".
	Type       string  `yaml:"type"`
	BucketSize float64 `yaml:"bucket_size"`
	RefillRate float64 `yaml:"refill_rate"`
	WindowSize Duration `yaml:"window_size"`
}

// MetricsConfig controls the Prometheus metrics namespace.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
	Addr      string `yaml:"addr"`
}

// LogConfig holds the log.level key. The value is parsed but not applied:
// the loggers buildTracker creates always log at debug level to stderr.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
