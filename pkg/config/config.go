package config

import "time"

// Config is the root configuration structure for exportd.
// It contains the persistence, repository, object storage, locking, export
// engine, background job, localization and telemetry sections.
type Config struct {
	// Storage contains configuration for the profile and process store.
	Storage StorageConfig `yaml:"storage"`

	// Mongo contains the document store holding primitives, users, consent
	// logs and deployments.
	Mongo MongoConfig `yaml:"mongo"`

	// ObjectStore contains configuration for binary assets and export archives.
	ObjectStore ObjectStoreConfig `yaml:"object_store"`

	// Lock contains configuration for the per-requester export lock.
	Lock LockConfig `yaml:"lock"`

	// Export contains export engine tuning.
	Export ExportConfig `yaml:"export"`

	// Jobs contains configuration for background export workers and sweepers.
	Jobs JobsConfig `yaml:"jobs"`

	// Localization contains configuration for the localization bundle.
	Localization LocalizationConfig `yaml:"localization"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// StorageConfig contains configuration for profile and process persistence.
type StorageConfig struct {
	// Backend selects the storage implementation.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite-specific storage configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/exportd.db"
	Path string `yaml:"path"`

	// Driver selects the database/sql driver.
	// Options: "sqlite3" (cgo, mattn), "sqlite" (pure Go, modernc)
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// MongoConfig contains document store configuration.
type MongoConfig struct {
	// URI is the MongoDB connection string.
	URI string `yaml:"uri"`

	// Database is the database holding the clinical collections.
	// Default: "cohortline"
	Database string `yaml:"database"`

	// ConnectTimeout bounds the initial connection and ping.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ObjectStoreConfig contains S3-compatible object storage configuration.
type ObjectStoreConfig struct {
	// Backend selects the object store implementation.
	// Options: "minio", "memory"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Endpoint is the S3-compatible endpoint (host:port).
	Endpoint string `yaml:"endpoint"`

	// AccessKey and SecretKey are static credentials.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// Region is the bucket region.
	Region string `yaml:"region"`

	// UseSSL enables HTTPS to the endpoint.
	UseSSL bool `yaml:"use_ssl"`

	// ExportBucket receives background export archives.
	// Default: "exports"
	ExportBucket string `yaml:"export_bucket"`

	// ExportPrefix is prepended to archive object keys.
	// Default: "export/"
	ExportPrefix string `yaml:"export_prefix"`

	// SignedURLExpiry is the lifetime of signed download URLs.
	// Default: 24h
	SignedURLExpiry time.Duration `yaml:"signed_url_expiry"`
}

// LockConfig contains per-requester lock configuration.
type LockConfig struct {
	// Backend selects the lock implementation.
	// Options: "redis", "memory"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// TTL bounds how long a lock is held if its owner dies.
	// Default: 30s
	TTL time.Duration `yaml:"ttl"`

	// Redis contains Redis connection settings.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	// Addr is the Redis address (host:port).
	// Default: "localhost:6379"
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ExportConfig contains export engine tuning.
type ExportConfig struct {
	// UseProfiles enables default export profile lookup.
	// Default: true
	UseProfiles bool `yaml:"use_profiles"`

	// HashSecret keys the de-identification hash. Hashes are stable for a
	// fixed secret.
	HashSecret string `yaml:"hash_secret"`

	// StrictBinaries aborts a run when a binary reference cannot be
	// resolved instead of nulling the field.
	// Default: false
	StrictBinaries bool `yaml:"strict_binaries"`

	// FetchConcurrency bounds concurrent module fetchers per deployment.
	// Default: 4
	FetchConcurrency int `yaml:"fetch_concurrency"`

	// BinaryConcurrency bounds concurrent binary downloads or signings.
	// Default: 8
	BinaryConcurrency int `yaml:"binary_concurrency"`
}

// JobsConfig contains background export configuration.
type JobsConfig struct {
	// Workers is the number of concurrent export workers.
	// Default: 2
	Workers int `yaml:"workers"`

	// PollInterval is how often idle workers look for CREATED processes.
	// Default: 5s
	PollInterval time.Duration `yaml:"poll_interval"`

	// StuckSchedule is the cron expression of the stuck-process sweeper.
	// Default: "*/10 * * * *"
	StuckSchedule string `yaml:"stuck_schedule"`

	// StuckTimeout is how long a process may stay in PROCESSING.
	// Default: 1h
	StuckTimeout time.Duration `yaml:"stuck_timeout"`

	// RetentionSchedule is the cron expression of the retention sweeper.
	// Default: "0 3 * * *"
	RetentionSchedule string `yaml:"retention_schedule"`

	// RetentionPeriod is how long per-user and report artifacts are kept.
	// Default: 168h
	RetentionPeriod time.Duration `yaml:"retention_period"`
}

// LocalizationConfig contains localization bundle configuration.
type LocalizationConfig struct {
	// BundlePath is a YAML file holding global localizations and short codes.
	// Empty disables the bundle.
	BundlePath string `yaml:"bundle_path"`

	// Watch reloads the bundle when the file changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// DebounceDelay coalesces bursts of file events.
	// Default: 100ms
	DebounceDelay time.Duration `yaml:"debounce_delay"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress serves the metrics endpoint from `exportd run`.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "cohortline"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "exportd"
	Subsystem string `yaml:"subsystem"`

	// DurationBuckets defines histogram buckets for export duration (seconds).
	// Default: [1, 5, 15, 30, 60, 120, 300, 900]
	DurationBuckets []float64 `yaml:"duration_buckets"`
}
