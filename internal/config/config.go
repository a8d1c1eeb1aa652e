// Package config loads engine configuration from a YAML file and applies
// defaults suitable for a single-user local-first install.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`
	// AuthorKey is the local user's public key; remote fetches filter on it.
	AuthorKey string `yaml:"author_key"`
	// Relays are the relay endpoints to publish to and fetch from.
	Relays []string `yaml:"relays"`

	Cache   CacheConfig   `yaml:"cache"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Outbox  OutboxConfig  `yaml:"outbox"`
	Network NetworkConfig `yaml:"network"`
}

// CacheConfig bounds the on-disk asset cache.
type CacheConfig struct {
	Dir            string `yaml:"dir"`
	BudgetMB       int64  `yaml:"budget_mb"`
	FreshnessHours int    `yaml:"freshness_hours"`
}

// BufferConfig tunes the write-coalescing buffer.
type BufferConfig struct {
	Capacity     int           `yaml:"capacity"`
	MaxBatchSize int           `yaml:"max_batch_size"`
	Debounce     time.Duration `yaml:"debounce"`
	MaxRetries   int           `yaml:"max_retries"`
}

// OutboxConfig tunes outbound publication.
type OutboxConfig struct {
	MaxAttempts int     `yaml:"max_attempts"`
	RatePerSec  float64 `yaml:"rate_per_sec"`
}

// NetworkConfig tunes the connectivity monitor.
type NetworkConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// Default returns the configuration used when no file is given. Paths are
// rooted under dataDir.
func Default(dataDir string) Config {
	return Config{
		DBPath: filepath.Join(dataDir, "liftsync.db"),
		Cache: CacheConfig{
			Dir:            filepath.Join(dataDir, "assets"),
			BudgetMB:       150,
			FreshnessHours: 24,
		},
		Buffer: BufferConfig{
			Capacity:     1000,
			MaxBatchSize: 100,
			Debounce:     50 * time.Millisecond,
			MaxRetries:   5,
		},
		Outbox: OutboxConfig{
			MaxAttempts: 5,
			RatePerSec:  5,
		},
		Network: NetworkConfig{
			ProbeInterval: 30 * time.Second,
		},
	}
}

// Load reads a YAML config file. Fields the file omits keep the defaults
// for dataDir.
func Load(path, dataDir string) (Config, error) {
	cfg := Default(dataDir)

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Cache.BudgetMB <= 0 {
		return fmt.Errorf("cache.budget_mb must be positive, got %d", c.Cache.BudgetMB)
	}
	if c.Buffer.Capacity <= 0 {
		return fmt.Errorf("buffer.capacity must be positive, got %d", c.Buffer.Capacity)
	}
	if c.Buffer.MaxBatchSize <= 0 || c.Buffer.MaxBatchSize > c.Buffer.Capacity {
		return fmt.Errorf("buffer.max_batch_size must be in 1..%d, got %d", c.Buffer.Capacity, c.Buffer.MaxBatchSize)
	}
	if c.Buffer.Debounce < 0 {
		return fmt.Errorf("buffer.debounce must not be negative")
	}
	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("outbox.max_attempts must be positive, got %d", c.Outbox.MaxAttempts)
	}
	if c.Outbox.RatePerSec <= 0 {
		return fmt.Errorf("outbox.rate_per_sec must be positive")
	}
	for _, r := range c.Relays {
		if r == "" {
			return fmt.Errorf("relays must not contain empty entries")
		}
	}
	return nil
}

// CacheBudgetBytes converts the configured budget to bytes.
func (c CacheConfig) CacheBudgetBytes() int64 {
	return c.BudgetMB << 20
}

// Freshness converts the configured freshness window to a duration.
func (c CacheConfig) Freshness() time.Duration {
	return time.Duration(c.FreshnessHours) * time.Hour
}
