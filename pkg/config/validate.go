package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "jobs.workers").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateObjectStore(&cfg.ObjectStore)...)
	errs = append(errs, validateLock(&cfg.Lock)...)
	errs = append(errs, validateExport(&cfg.Export)...)
	errs = append(errs, validateJobs(&cfg.Jobs)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "path is required for the sqlite backend"})
		}
		if cfg.SQLite.Driver != "sqlite3" && cfg.SQLite.Driver != "sqlite" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q (must be sqlite3 or sqlite)", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_open_conns", Message: "must not be negative"})
		}
		if cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_idle_conns", Message: "must not exceed max_open_conns"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q (must be sqlite or memory)", cfg.Backend),
		})
	}

	return errs
}

func validateObjectStore(cfg *ObjectStoreConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "minio":
		if cfg.Endpoint == "" {
			errs = append(errs, FieldError{Field: "object_store.endpoint", Message: "endpoint is required for the minio backend"})
		}
		if strings.Contains(cfg.Endpoint, "://") {
			errs = append(errs, FieldError{Field: "object_store.endpoint", Message: "endpoint must be host:port without a scheme"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "object_store.backend",
			Message: fmt.Sprintf("invalid backend %q (must be minio or memory)", cfg.Backend),
		})
	}
	if cfg.ExportBucket == "" {
		errs = append(errs, FieldError{Field: "object_store.export_bucket", Message: "export bucket is required"})
	}
	if cfg.SignedURLExpiry <= 0 {
		errs = append(errs, FieldError{Field: "object_store.signed_url_expiry", Message: "must be positive"})
	}

	return errs
}

func validateLock(cfg *LockConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "redis":
		if _, _, err := net.SplitHostPort(cfg.Redis.Addr); err != nil {
			errs = append(errs, FieldError{Field: "lock.redis.addr", Message: fmt.Sprintf("invalid address: %v", err)})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "lock.backend",
			Message: fmt.Sprintf("invalid backend %q (must be redis or memory)", cfg.Backend),
		})
	}
	if cfg.TTL <= 0 {
		errs = append(errs, FieldError{Field: "lock.ttl", Message: "must be positive"})
	}

	return errs
}

func validateExport(cfg *ExportConfig) []FieldError {
	var errs []FieldError

	if cfg.FetchConcurrency < 1 {
		errs = append(errs, FieldError{Field: "export.fetch_concurrency", Message: "must be at least 1"})
	}
	if cfg.BinaryConcurrency < 1 {
		errs = append(errs, FieldError{Field: "export.binary_concurrency", Message: "must be at least 1"})
	}

	return errs
}

func validateJobs(cfg *JobsConfig) []FieldError {
	var errs []FieldError

	if cfg.Workers < 1 {
		errs = append(errs, FieldError{Field: "jobs.workers", Message: "must be at least 1"})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, FieldError{Field: "jobs.poll_interval", Message: "must be positive"})
	}
	if _, err := cron.ParseStandard(cfg.StuckSchedule); err != nil {
		errs = append(errs, FieldError{Field: "jobs.stuck_schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
	}
	if _, err := cron.ParseStandard(cfg.RetentionSchedule); err != nil {
		errs = append(errs, FieldError{Field: "jobs.retention_schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
	}
	if cfg.StuckTimeout <= 0 {
		errs = append(errs, FieldError{Field: "jobs.stuck_timeout", Message: "must be positive"})
	}
	if cfg.RetentionPeriod <= 0 {
		errs = append(errs, FieldError{Field: "jobs.retention_period", Message: "must be positive"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q (must be debug, info, warn or error)", cfg.Logging.Level),
		})
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q (must be json or text)", cfg.Logging.Format),
		})
	}
	if cfg.Metrics.Enabled {
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "path must start with /"})
		}
		if _, _, err := net.SplitHostPort(cfg.Metrics.ListenAddress); err != nil {
			errs = append(errs, FieldError{Field: "telemetry.metrics.listen_address", Message: fmt.Sprintf("invalid address: %v", err)})
		}
	}

	return errs
}
