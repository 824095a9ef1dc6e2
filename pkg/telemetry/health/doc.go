// Package health serves the liveness, readiness and version endpoints of
// `exportd run`.
//
// Readiness runs every registered dependency check concurrently, each bounded
// by the checker timeout:
//
//	checker := health.New(5 * time.Second)
//	checker.Register("storage", func(ctx context.Context) error { ... })
//	checker.Register("mongo", store.Ping)
//	health.Mount(mux, checker, Version, GitCommit, BuildDate)
//
// /ready answers 503 with a "degraded" report when any check fails.
package health
