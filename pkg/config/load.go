package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EXPORTD_"

// LoadConfig loads configuration from a YAML file at the specified path.
// Omitted fields keep their defaults. The result is validated but not
// modified by environment variables; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention EXPORTD_SECTION_FIELD (e.g., EXPORTD_MONGO_URI) and always take
// precedence over file-based configuration.
//
// An empty path skips the file and starts from defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefaultConfig()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Storage overrides
	envString("STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	envString("STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)

	// Mongo overrides
	envString("MONGO_URI", &cfg.Mongo.URI)
	envString("MONGO_DATABASE", &cfg.Mongo.Database)
	envDuration("MONGO_CONNECT_TIMEOUT", &cfg.Mongo.ConnectTimeout)

	// Object store overrides
	envString("OBJECT_STORE_BACKEND", &cfg.ObjectStore.Backend)
	envString("OBJECT_STORE_ENDPOINT", &cfg.ObjectStore.Endpoint)
	envString("OBJECT_STORE_ACCESS_KEY", &cfg.ObjectStore.AccessKey)
	envString("OBJECT_STORE_SECRET_KEY", &cfg.ObjectStore.SecretKey)
	envString("OBJECT_STORE_REGION", &cfg.ObjectStore.Region)
	envBool("OBJECT_STORE_USE_SSL", &cfg.ObjectStore.UseSSL)
	envString("OBJECT_STORE_EXPORT_BUCKET", &cfg.ObjectStore.ExportBucket)

	// Lock overrides
	envString("LOCK_BACKEND", &cfg.Lock.Backend)
	envDuration("LOCK_TTL", &cfg.Lock.TTL)
	envString("LOCK_REDIS_ADDR", &cfg.Lock.Redis.Addr)
	envString("LOCK_REDIS_PASSWORD", &cfg.Lock.Redis.Password)
	envInt("LOCK_REDIS_DB", &cfg.Lock.Redis.DB)

	// Export overrides
	envBool("EXPORT_USE_PROFILES", &cfg.Export.UseProfiles)
	envString("EXPORT_HASH_SECRET", &cfg.Export.HashSecret)
	envBool("EXPORT_STRICT_BINARIES", &cfg.Export.StrictBinaries)
	envInt("EXPORT_FETCH_CONCURRENCY", &cfg.Export.FetchConcurrency)
	envInt("EXPORT_BINARY_CONCURRENCY", &cfg.Export.BinaryConcurrency)

	// Jobs overrides
	envInt("JOBS_WORKERS", &cfg.Jobs.Workers)
	envDuration("JOBS_POLL_INTERVAL", &cfg.Jobs.PollInterval)
	envString("JOBS_STUCK_SCHEDULE", &cfg.Jobs.StuckSchedule)
	envDuration("JOBS_STUCK_TIMEOUT", &cfg.Jobs.StuckTimeout)
	envString("JOBS_RETENTION_SCHEDULE", &cfg.Jobs.RetentionSchedule)
	envDuration("JOBS_RETENTION_PERIOD", &cfg.Jobs.RetentionPeriod)

	// Localization overrides
	envString("LOCALIZATION_BUNDLE_PATH", &cfg.Localization.BundlePath)
	envBool("LOCALIZATION_WATCH", &cfg.Localization.Watch)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
}
