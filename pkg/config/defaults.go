package config

import "time"

// Default values for configuration fields.
const (
	// Storage defaults
	DefaultStorageBackend     = "sqlite"
	DefaultSQLitePath         = "data/exportd.db"
	DefaultSQLiteDriver       = "sqlite3"
	DefaultSQLiteMaxOpenConns = 10
	DefaultSQLiteMaxIdleConns = 5
	DefaultSQLiteWALMode      = true
	DefaultSQLiteBusyTimeout  = 5 * time.Second

	// Mongo defaults
	DefaultMongoDatabase       = "cohortline"
	DefaultMongoConnectTimeout = 10 * time.Second

	// Object store defaults
	DefaultObjectStoreBackend = "memory"
	DefaultExportBucket       = "exports"
	DefaultExportPrefix       = "export/"
	DefaultSignedURLExpiry    = 24 * time.Hour

	// Lock defaults
	DefaultLockBackend = "memory"
	DefaultLockTTL     = 30 * time.Second
	DefaultRedisAddr   = "localhost:6379"

	// Export defaults
	DefaultUseProfiles       = true
	DefaultFetchConcurrency  = 4
	DefaultBinaryConcurrency = 8

	// Jobs defaults
	DefaultJobWorkers        = 2
	DefaultJobPollInterval   = 5 * time.Second
	DefaultStuckSchedule     = "*/10 * * * *"
	DefaultStuckTimeout      = time.Hour
	DefaultRetentionSchedule = "0 3 * * *"
	DefaultRetentionPeriod   = 7 * 24 * time.Hour

	// Localization defaults
	DefaultLocalizationDebounce = 100 * time.Millisecond

	// Telemetry defaults
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "json"
	DefaultMetricsEnabled       = true
	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "cohortline"
	DefaultMetricsSubsystem     = "exportd"
)

// DefaultDurationBuckets are the export duration histogram buckets in seconds.
var DefaultDurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 900}

// NewDefaultConfig returns a configuration with every default applied.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			SQLite: SQLiteConfig{WALMode: DefaultSQLiteWALMode},
		},
		Export: ExportConfig{UseProfiles: DefaultUseProfiles},
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
// Boolean fields are left alone since false is a valid choice; LoadConfig
// decodes on top of NewDefaultConfig so omitted booleans keep their default.
func ApplyDefaults(cfg *Config) {
	applyStorageDefaults(&cfg.Storage)
	applyMongoDefaults(&cfg.Mongo)
	applyObjectStoreDefaults(&cfg.ObjectStore)
	applyLockDefaults(&cfg.Lock)
	applyExportDefaults(&cfg.Export)
	applyJobsDefaults(&cfg.Jobs)
	applyLocalizationDefaults(&cfg.Localization)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyStorageDefaults(s *StorageConfig) {
	if s.Backend == "" {
		s.Backend = DefaultStorageBackend
	}
	if s.SQLite.Path == "" {
		s.SQLite.Path = DefaultSQLitePath
	}
	if s.SQLite.Driver == "" {
		s.SQLite.Driver = DefaultSQLiteDriver
	}
	if s.SQLite.MaxOpenConns == 0 {
		s.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if s.SQLite.MaxIdleConns == 0 {
		s.SQLite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if s.SQLite.BusyTimeout == 0 {
		s.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
}

func applyMongoDefaults(m *MongoConfig) {
	if m.Database == "" {
		m.Database = DefaultMongoDatabase
	}
	if m.ConnectTimeout == 0 {
		m.ConnectTimeout = DefaultMongoConnectTimeout
	}
}

func applyObjectStoreDefaults(o *ObjectStoreConfig) {
	if o.Backend == "" {
		o.Backend = DefaultObjectStoreBackend
	}
	if o.ExportBucket == "" {
		o.ExportBucket = DefaultExportBucket
	}
	if o.ExportPrefix == "" {
		o.ExportPrefix = DefaultExportPrefix
	}
	if o.SignedURLExpiry == 0 {
		o.SignedURLExpiry = DefaultSignedURLExpiry
	}
}

func applyLockDefaults(l *LockConfig) {
	if l.Backend == "" {
		l.Backend = DefaultLockBackend
	}
	if l.TTL == 0 {
		l.TTL = DefaultLockTTL
	}
	if l.Redis.Addr == "" {
		l.Redis.Addr = DefaultRedisAddr
	}
}

func applyExportDefaults(e *ExportConfig) {
	if e.FetchConcurrency == 0 {
		e.FetchConcurrency = DefaultFetchConcurrency
	}
	if e.BinaryConcurrency == 0 {
		e.BinaryConcurrency = DefaultBinaryConcurrency
	}
}

func applyJobsDefaults(j *JobsConfig) {
	if j.Workers == 0 {
		j.Workers = DefaultJobWorkers
	}
	if j.PollInterval == 0 {
		j.PollInterval = DefaultJobPollInterval
	}
	if j.StuckSchedule == "" {
		j.StuckSchedule = DefaultStuckSchedule
	}
	if j.StuckTimeout == 0 {
		j.StuckTimeout = DefaultStuckTimeout
	}
	if j.RetentionSchedule == "" {
		j.RetentionSchedule = DefaultRetentionSchedule
	}
	if j.RetentionPeriod == 0 {
		j.RetentionPeriod = DefaultRetentionPeriod
	}
}

func applyLocalizationDefaults(l *LocalizationConfig) {
	if l.DebounceDelay == 0 {
		l.DebounceDelay = DefaultLocalizationDebounce
	}
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLogLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLogFormat
	}
	if t.Metrics.ListenAddress == "" {
		t.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Metrics.Subsystem == "" {
		t.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(t.Metrics.DurationBuckets) == 0 {
		t.Metrics.DurationBuckets = append([]float64(nil), DefaultDurationBuckets...)
	}
}
