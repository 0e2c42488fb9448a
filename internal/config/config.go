// Package config loads and validates the marketfill configuration from a
// YAML file, a .env file, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for marketfill.
type Config struct {
	Polygon  Polygon  `yaml:"polygon"`
	Backfill Backfill `yaml:"backfill"`
	Storage  Storage  `yaml:"storage"`
	Logging  Logging  `yaml:"logging"`
}

// Polygon holds the data-provider credential and endpoint settings.
type Polygon struct {
	APIKey             string `yaml:"api_key"`
	BaseURL            string `yaml:"base_url"`
	BarIntervalMinutes int    `yaml:"bar_interval_minutes"`
	RequestsPerMinute  int    `yaml:"requests_per_minute"` // 0 disables client-side limiting
}

// Backfill holds run parameters for the ingestion engine.
type Backfill struct {
	Concurrency           int `yaml:"concurrency"`
	BatchSize             int `yaml:"batch_size"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// Storage holds the persistence target.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RequestTimeout returns the per-call network timeout as a duration.
func (b Backfill) RequestTimeout() time.Duration {
	return time.Duration(b.RequestTimeoutSeconds) * time.Second
}

// ConfigError reports missing or invalid configuration. It is fatal and
// raised before any backfill work starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the documented defaults. The API key has no default.
func Default() *Config {
	return &Config{
		Polygon: Polygon{
			BaseURL:            "https://api.polygon.io/v2",
			BarIntervalMinutes: 30,
		},
		Backfill: Backfill{
			Concurrency:           12,
			BatchSize:             300,
			RequestTimeoutSeconds: 30,
		},
		Storage: Storage{
			SQLitePath: "marketfill.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (a
// missing file is fine — env-only operation is supported), then a .env file
// in the working directory, then environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	// Best-effort: a missing .env is the normal case.
	_ = godotenv.Load()

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		cfg.Polygon.APIKey = v
	}
	if v := os.Getenv("POLYGON_BASE_URL"); v != "" {
		cfg.Polygon.BaseURL = v
	}
	if v := envInt("MARKETFILL_CONCURRENCY"); v > 0 {
		cfg.Backfill.Concurrency = v
	}
	if v := envInt("MARKETFILL_BATCH_SIZE"); v > 0 {
		cfg.Backfill.BatchSize = v
	}
	if v := envInt("MARKETFILL_TIMEOUT_SECONDS"); v > 0 {
		cfg.Backfill.RequestTimeoutSeconds = v
	}
	if v := os.Getenv("MARKETFILL_DB_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Validate checks the configuration once at startup.
func (c *Config) Validate() error {
	if c.Polygon.APIKey == "" {
		return &ConfigError{Field: "polygon.api_key", Reason: "is required (set POLYGON_API_KEY)"}
	}
	if c.Backfill.Concurrency <= 0 {
		return &ConfigError{Field: "backfill.concurrency", Reason: "must be positive"}
	}
	if c.Backfill.BatchSize <= 0 {
		return &ConfigError{Field: "backfill.batch_size", Reason: "must be positive"}
	}
	if c.Backfill.RequestTimeoutSeconds <= 0 {
		return &ConfigError{Field: "backfill.request_timeout_seconds", Reason: "must be positive"}
	}
	if c.Storage.SQLitePath == "" {
		return &ConfigError{Field: "storage.sqlite_path", Reason: "must not be empty"}
	}
	return nil
}
