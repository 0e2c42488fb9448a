package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"POLYGON_API_KEY", "POLYGON_BASE_URL",
		"MARKETFILL_CONCURRENCY", "MARKETFILL_BATCH_SIZE",
		"MARKETFILL_TIMEOUT_SECONDS", "MARKETFILL_DB_PATH", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Backfill.Concurrency != 12 {
		t.Errorf("Concurrency = %d, want 12", cfg.Backfill.Concurrency)
	}
	if cfg.Backfill.BatchSize != 300 {
		t.Errorf("BatchSize = %d, want 300", cfg.Backfill.BatchSize)
	}
	if cfg.Backfill.RequestTimeoutSeconds != 30 {
		t.Errorf("RequestTimeoutSeconds = %d, want 30", cfg.Backfill.RequestTimeoutSeconds)
	}
	if cfg.Polygon.BarIntervalMinutes != 30 {
		t.Errorf("BarIntervalMinutes = %d, want 30", cfg.Polygon.BarIntervalMinutes)
	}
	if cfg.Polygon.APIKey != "" {
		t.Errorf("APIKey = %q, want empty (no default credential)", cfg.Polygon.APIKey)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)

	yamlContent := []byte(`
polygon:
  api_key: "yaml-key"
  requests_per_minute: 100
backfill:
  concurrency: 6
  batch_size: 50
storage:
  sqlite_path: "/tmp/marketfill-test.db"
logging:
  level: "debug"
  format: "text"
`)
	path := filepath.Join(t.TempDir(), "marketfill.yaml")
	if err := os.WriteFile(path, yamlContent, 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Polygon.APIKey != "yaml-key" {
		t.Errorf("APIKey = %q, want %q", cfg.Polygon.APIKey, "yaml-key")
	}
	if cfg.Polygon.RequestsPerMinute != 100 {
		t.Errorf("RequestsPerMinute = %d, want 100", cfg.Polygon.RequestsPerMinute)
	}
	if cfg.Backfill.Concurrency != 6 {
		t.Errorf("Concurrency = %d, want 6", cfg.Backfill.Concurrency)
	}
	if cfg.Backfill.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.Backfill.BatchSize)
	}
	// Unspecified fields keep their defaults.
	if cfg.Backfill.RequestTimeoutSeconds != 30 {
		t.Errorf("RequestTimeoutSeconds = %d, want default 30", cfg.Backfill.RequestTimeoutSeconds)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLYGON_API_KEY", "env-key")
	t.Setenv("MARKETFILL_CONCURRENCY", "3")
	t.Setenv("MARKETFILL_DB_PATH", "/env/data.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Polygon.APIKey != "env-key" {
		t.Errorf("APIKey = %q, want %q (env override)", cfg.Polygon.APIKey, "env-key")
	}
	if cfg.Backfill.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3 (env override)", cfg.Backfill.Concurrency)
	}
	if cfg.Storage.SQLitePath != "/env/data.db" {
		t.Errorf("SQLitePath = %q, want %q (env override)", cfg.Storage.SQLitePath, "/env/data.db")
	}
	// Untouched fields keep defaults.
	if cfg.Backfill.BatchSize != 300 {
		t.Errorf("BatchSize = %d, want default 300", cfg.Backfill.BatchSize)
	}
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	cfg := Default()
	err := cfg.Validate()
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("Validate returned %v without an API key, want *ConfigError", err)
	}
	if cerr.Field != "polygon.api_key" {
		t.Errorf("ConfigError.Field = %q, want polygon.api_key", cerr.Field)
	}

	cfg.Polygon.APIKey = "key"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate returned %v for a complete config", err)
	}

	cfg.Backfill.Concurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject non-positive concurrency")
	}
}
