package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidate_Sections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown storage backend", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.backend"},
		{"unknown sqlite driver", func(c *Config) { c.Storage.SQLite.Driver = "cgo" }, "storage.sqlite.driver"},
		{"idle over open", func(c *Config) { c.Storage.SQLite.MaxIdleConns = 50 }, "storage.sqlite.max_idle_conns"},
		{"minio without endpoint", func(c *Config) { c.ObjectStore.Backend = "minio" }, "object_store.endpoint"},
		{"minio endpoint with scheme", func(c *Config) {
			c.ObjectStore.Backend = "minio"
			c.ObjectStore.Endpoint = "http://localhost:9000"
		}, "object_store.endpoint"},
		{"redis bad address", func(c *Config) {
			c.Lock.Backend = "redis"
			c.Lock.Redis.Addr = "localhost"
		}, "lock.redis.addr"},
		{"zero workers", func(c *Config) { c.Jobs.Workers = 0 }, "jobs.workers"},
		{"bad cron", func(c *Config) { c.Jobs.RetentionSchedule = "every day" }, "jobs.retention_schedule"},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "trace" }, "telemetry.logging.level"},
		{"metrics path", func(c *Config) { c.Telemetry.Metrics.Path = "metrics" }, "telemetry.metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			found := false
			for _, fe := range ve.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error for field %q, got %v", tt.field, ve.Errors)
			}
		})
	}
}

func TestValidate_MetricsDisabledSkipsChecks(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Telemetry.Metrics.Enabled = false
	cfg.Telemetry.Metrics.ListenAddress = "nonsense"

	if err := Validate(cfg); err != nil {
		t.Errorf("disabled metrics should not be validated: %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	single := ValidationError{Errors: []FieldError{{Field: "jobs.workers", Message: "must be at least 1"}}}
	if got := single.Error(); got != "configuration validation failed: jobs.workers: must be at least 1" {
		t.Errorf("unexpected single error message: %q", got)
	}

	multi := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "x"},
		{Field: "b", Message: "y"},
	}}
	if got := multi.Error(); !strings.Contains(got, "2 errors") {
		t.Errorf("unexpected multi error message: %q", got)
	}
}
