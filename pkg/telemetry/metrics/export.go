package metrics

import (
	"time"

	"cohortline/exportd/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ExportMetrics tracks export runs.
//
// Metrics:
//   - exports_total: export runs by type and status
//   - export_duration_seconds: run duration histogram by type
//   - records_exported_total: records written by category
type ExportMetrics struct {
	exportsTotal    *prometheus.CounterVec
	exportDuration  *prometheus.HistogramVec
	recordsExported *prometheus.CounterVec
}

// NewExportMetrics creates and registers export metrics with the provided registry.
func NewExportMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ExportMetrics {
	em := &ExportMetrics{
		exportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "exports_total",
				Help:      "Total number of export runs",
			},
			[]string{"type", "status"},
		),
		exportDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "export_duration_seconds",
				Help:      "Duration of export runs in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"type"},
		),
		recordsExported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "records_exported_total",
				Help:      "Total number of records written to exports",
			},
			[]string{"category"},
		),
	}

	registry.MustRegister(em.exportsTotal, em.exportDuration, em.recordsExported)
	return em
}

// RecordExport records a finished export run.
func (em *ExportMetrics) RecordExport(exportType, status string, duration time.Duration) {
	em.exportsTotal.WithLabelValues(exportType, status).Inc()
	em.exportDuration.WithLabelValues(exportType).Observe(duration.Seconds())
}

// RecordRecords adds count records for category.
func (em *ExportMetrics) RecordRecords(category string, count int) {
	em.recordsExported.WithLabelValues(category).Add(float64(count))
}

// ResolutionMetrics tracks binary and module-config resolution.
//
// Metrics:
//   - binary_resolutions_total: binary references by mode and outcome
//   - revision_lookups_total: historical revision queries by outcome
//   - ambiguous_versions_total: version-0 lookups with an unversioned twin
type ResolutionMetrics struct {
	binaryResolutions *prometheus.CounterVec
	revisionLookups   *prometheus.CounterVec
	ambiguousVersions prometheus.Counter
}

// NewResolutionMetrics creates and registers resolution metrics with the provided registry.
func NewResolutionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ResolutionMetrics {
	rm := &ResolutionMetrics{
		binaryResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "binary_resolutions_total",
				Help:      "Total number of binary reference resolutions",
			},
			[]string{"mode", "outcome"},
		),
		revisionLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "revision_lookups_total",
				Help:      "Total number of deployment revision queries",
			},
			[]string{"outcome"},
		),
		ambiguousVersions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ambiguous_versions_total",
				Help:      "Version-0 config lookups that also matched an unversioned config",
			},
		),
	}

	registry.MustRegister(rm.binaryResolutions, rm.revisionLookups, rm.ambiguousVersions)
	return rm
}

// RecordBinary records one binary resolution.
func (rm *ResolutionMetrics) RecordBinary(mode, outcome string) {
	rm.binaryResolutions.WithLabelValues(mode, outcome).Inc()
}

// RecordRevisionLookup records one revision query.
func (rm *ResolutionMetrics) RecordRevisionLookup(outcome string) {
	rm.revisionLookups.WithLabelValues(outcome).Inc()
}

// RecordAmbiguous records one ambiguous version lookup.
func (rm *ResolutionMetrics) RecordAmbiguous() {
	rm.ambiguousVersions.Inc()
}

// JobMetrics tracks the background sweepers.
//
// Metrics:
//   - stuck_processes_total: processes failed by the stuck sweeper
//   - pruned_artifacts_total: processes removed by the retention sweeper
type JobMetrics struct {
	stuckProcesses  prometheus.Counter
	prunedArtifacts prometheus.Counter
}

// NewJobMetrics creates and registers job metrics with the provided registry.
func NewJobMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *JobMetrics {
	jm := &JobMetrics{
		stuckProcesses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stuck_processes_total",
			Help:      "Total number of export processes failed after staying in PROCESSING too long",
		}),
		prunedArtifacts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "pruned_artifacts_total",
			Help:      "Total number of export artifacts removed by retention",
		}),
	}

	registry.MustRegister(jm.stuckProcesses, jm.prunedArtifacts)
	return jm
}

// RecordStuck adds n stuck processes.
func (jm *JobMetrics) RecordStuck(n int) {
	jm.stuckProcesses.Add(float64(n))
}

// RecordPruned adds n pruned artifacts.
func (jm *JobMetrics) RecordPruned(n int) {
	jm.prunedArtifacts.Add(float64(n))
}
