// Package metrics provides Prometheus metrics collection for exportd.
//
// # Metrics
//
//   - exports_total{type,status} and export_duration_seconds{type}
//   - records_exported_total{category}
//   - binary_resolutions_total{mode,outcome}
//   - revision_lookups_total{outcome} and ambiguous_versions_total
//   - stuck_processes_total and pruned_artifacts_total
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordExport("DEFAULT", "success", time.Since(start))
//	http.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// A nil *Collector is valid and records nothing.
package metrics
