package config

import (
	"reflect"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"storage.backend", cfg.Storage.Backend, DefaultStorageBackend},
		{"storage.sqlite.path", cfg.Storage.SQLite.Path, DefaultSQLitePath},
		{"storage.sqlite.driver", cfg.Storage.SQLite.Driver, DefaultSQLiteDriver},
		{"storage.sqlite.busy_timeout", cfg.Storage.SQLite.BusyTimeout, 5 * time.Second},
		{"mongo.database", cfg.Mongo.Database, DefaultMongoDatabase},
		{"object_store.backend", cfg.ObjectStore.Backend, DefaultObjectStoreBackend},
		{"object_store.export_prefix", cfg.ObjectStore.ExportPrefix, DefaultExportPrefix},
		{"lock.ttl", cfg.Lock.TTL, DefaultLockTTL},
		{"export.fetch_concurrency", cfg.Export.FetchConcurrency, DefaultFetchConcurrency},
		{"jobs.stuck_schedule", cfg.Jobs.StuckSchedule, DefaultStuckSchedule},
		{"jobs.retention_period", cfg.Jobs.RetentionPeriod, DefaultRetentionPeriod},
		{"localization.debounce_delay", cfg.Localization.DebounceDelay, DefaultLocalizationDebounce},
		{"telemetry.logging.level", cfg.Telemetry.Logging.Level, DefaultLogLevel},
		{"telemetry.metrics.path", cfg.Telemetry.Metrics.Path, DefaultMetricsPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestApplyDefaults_PreservesValues(t *testing.T) {
	cfg := &Config{
		Jobs:   JobsConfig{Workers: 7},
		Export: ExportConfig{BinaryConcurrency: 3},
	}
	ApplyDefaults(cfg)

	if cfg.Jobs.Workers != 7 {
		t.Errorf("expected workers to stay 7, got %d", cfg.Jobs.Workers)
	}
	if cfg.Export.BinaryConcurrency != 3 {
		t.Errorf("expected binary concurrency to stay 3, got %d", cfg.Export.BinaryConcurrency)
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg1 := &Config{}
	ApplyDefaults(cfg1)

	cfg2 := &Config{}
	ApplyDefaults(cfg2)
	ApplyDefaults(cfg2)

	if !reflect.DeepEqual(cfg1, cfg2) {
		t.Error("applying defaults twice should produce the same result")
	}
}

func TestNewDefaultConfig_Valid(t *testing.T) {
	if err := Validate(NewDefaultConfig()); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}
