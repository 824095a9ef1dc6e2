package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	configPath := writeConfig(t, `
storage:
  backend: "sqlite"
  sqlite:
    path: "./test-exportd.db"
    driver: "sqlite"

mongo:
  uri: "mongodb://localhost:27017"
  database: "clinical"

object_store:
  backend: "minio"
  endpoint: "localhost:9000"
  export_bucket: "artifacts"

jobs:
  workers: 4
  stuck_timeout: "30m"

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Storage.SQLite.Driver != "sqlite" {
		t.Errorf("expected driver %q, got %q", "sqlite", cfg.Storage.SQLite.Driver)
	}
	if cfg.Mongo.Database != "clinical" {
		t.Errorf("expected database %q, got %q", "clinical", cfg.Mongo.Database)
	}
	if cfg.ObjectStore.ExportBucket != "artifacts" {
		t.Errorf("expected bucket %q, got %q", "artifacts", cfg.ObjectStore.ExportBucket)
	}
	if cfg.Jobs.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Jobs.Workers)
	}
	if cfg.Jobs.StuckTimeout != 30*time.Minute {
		t.Errorf("expected stuck timeout %v, got %v", 30*time.Minute, cfg.Jobs.StuckTimeout)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected logging level %q, got %q", "debug", cfg.Telemetry.Logging.Level)
	}

	// Omitted booleans keep their defaults.
	if !cfg.Export.UseProfiles {
		t.Error("expected use_profiles to default to true")
	}
	if !cfg.Storage.SQLite.WALMode {
		t.Error("expected wal_mode to default to true")
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read configuration file") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	configPath := writeConfig(t, "storage: [unterminated")

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Fatal("expected error for malformed YAML")
	}
	if !strings.Contains(err.Error(), "failed to parse configuration file") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoadConfig_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
lock:
  backend: "etcd"
jobs:
  stuck_schedule: "not a cron"
`)

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(ve.Errors) != 2 {
		t.Errorf("expected 2 field errors, got %d: %v", len(ve.Errors), ve.Errors)
	}
}

func TestLoadConfigWithEnvOverrides_BasicOverrides(t *testing.T) {
	configPath := writeConfig(t, `
mongo:
  uri: "mongodb://file:27017"
`)

	t.Setenv("EXPORTD_MONGO_URI", "mongodb://env:27017")
	t.Setenv("EXPORTD_LOCK_BACKEND", "redis")
	t.Setenv("EXPORTD_LOCK_REDIS_ADDR", "redis:6380")
	t.Setenv("EXPORTD_EXPORT_STRICT_BINARIES", "true")
	t.Setenv("EXPORTD_JOBS_WORKERS", "8")
	t.Setenv("EXPORTD_JOBS_STUCK_TIMEOUT", "45m")

	cfg, err := LoadConfigWithEnvOverrides(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Mongo.URI != "mongodb://env:27017" {
		t.Errorf("expected env URI, got %q", cfg.Mongo.URI)
	}
	if cfg.Lock.Backend != "redis" || cfg.Lock.Redis.Addr != "redis:6380" {
		t.Errorf("unexpected lock config: %+v", cfg.Lock)
	}
	if !cfg.Export.StrictBinaries {
		t.Error("expected strict binaries from env")
	}
	if cfg.Jobs.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Jobs.Workers)
	}
	if cfg.Jobs.StuckTimeout != 45*time.Minute {
		t.Errorf("expected 45m stuck timeout, got %v", cfg.Jobs.StuckTimeout)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidEnvValues(t *testing.T) {
	t.Setenv("EXPORTD_JOBS_WORKERS", "many")
	t.Setenv("EXPORTD_JOBS_POLL_INTERVAL", "soon")
	t.Setenv("EXPORTD_EXPORT_USE_PROFILES", "maybe")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Jobs.Workers != DefaultJobWorkers {
		t.Errorf("invalid int should be ignored, got %d", cfg.Jobs.Workers)
	}
	if cfg.Jobs.PollInterval != DefaultJobPollInterval {
		t.Errorf("invalid duration should be ignored, got %v", cfg.Jobs.PollInterval)
	}
	if !cfg.Export.UseProfiles {
		t.Error("invalid bool should be ignored")
	}
}
