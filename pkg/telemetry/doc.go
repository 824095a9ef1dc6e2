// Package telemetry groups the observability packages of exportd.
//
// # Components
//
//   - logging: slog setup with attribute redaction and context ids
//   - metrics: Prometheus collector for export runs, resolution and sweepers
//   - health: liveness, readiness and version endpoints of `exportd run`
package telemetry
