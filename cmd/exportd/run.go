package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cohortline/exportd/pkg/cli"
	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/export/jobs"
	"cohortline/exportd/pkg/localization"
	"cohortline/exportd/pkg/telemetry/health"
)

const shutdownTimeout = 10 * time.Second

var runFlags struct {
	workers int
	listen  string
	dryRun  bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run background export workers",
	Long: `Run the background export service.

The service claims CREATED processes and executes them with a pool of workers,
uploads each archive to the export bucket and notifies the requester. Cron
sweepers fail processes stuck in PROCESSING and prune expired artifacts. The
telemetry listener serves /metrics, /health, /ready and /version.

Examples:
  # Start with a config file
  exportd run --config /etc/exportd/config.yaml

  # Override the worker count
  exportd run --workers 4

  # Validate config without starting
  exportd run --dry-run`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&runFlags.workers, "workers", 0, "override jobs.workers")
	runCmd.Flags().StringVarP(&runFlags.listen, "listen", "l", "", "override telemetry.metrics.listen_address")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runService(cmd *cobra.Command, _ []string) error {
	cfg := config.GetConfig()
	if runFlags.workers > 0 {
		cfg.Jobs.Workers = runFlags.workers
	}
	if runFlags.listen != "" {
		cfg.Telemetry.Metrics.ListenAddress = runFlags.listen
	}
	if runFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
		return nil
	}

	ctx, cancel := cli.SignalContext(cmd.Context())
	defer cancel()

	a, err := openEngine(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer a.Close(context.WithoutCancel(ctx))
	if err := a.openLocker(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	notifier := jobs.NewLogNotifier()
	runner := jobs.NewRunner(a.store, a.engine, notifier, jobs.RunnerConfig{
		Workers:      cfg.Jobs.Workers,
		PollInterval: cfg.Jobs.PollInterval,
	}, a.metrics)

	stuck := jobs.NewStuckSweeper(a.store, notifier, cfg.Jobs.StuckTimeout, a.metrics)
	retention := jobs.NewRetentionSweeper(a.store, a.objects, cfg.Jobs.RetentionPeriod, a.metrics)
	scheduler := jobs.NewScheduler(
		jobs.Job{Name: "stuck-processes", Schedule: cfg.Jobs.StuckSchedule, Run: stuck.Sweep},
		jobs.Job{Name: "retention", Schedule: cfg.Jobs.RetentionSchedule, Run: retention.Sweep},
	)
	if err := scheduler.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })

	if cfg.Localization.Watch && a.catalog.Path() != "" {
		watcher, err := localization.NewWatcher(a.catalog, cfg.Localization.DebounceDelay)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer watcher.Stop()
		g.Go(func() error { return watcher.Watch(gctx) })
	}

	srv := &http.Server{
		Addr:              cfg.Telemetry.Metrics.ListenAddress,
		Handler:           telemetryMux(a),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		slog.Info("telemetry listener started", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("telemetry listener: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("exportd started",
		"version", Version,
		"workers", cfg.Jobs.Workers,
		"storage", cfg.Storage.Backend,
		"object_store", cfg.ObjectStore.Backend,
		"lock", cfg.Lock.Backend,
	)
	if err := g.Wait(); err != nil {
		return cli.NewCommandError("run", err)
	}
	slog.Info("exportd stopped")
	return nil
}

// telemetryMux serves metrics and the health endpoints.
func telemetryMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	if a.cfg.Telemetry.Metrics.Enabled {
		mux.Handle(a.cfg.Telemetry.Metrics.Path, a.metrics.Handler())
	}
	health.Mount(mux, readiness(a), Version, GitCommit, BuildDate)
	return mux
}

// readiness registers a check per external dependency the app opened.
func readiness(a *app) *health.Checker {
	checker := health.New(5 * time.Second)
	checker.Register("storage", func(ctx context.Context) error {
		_, err := a.store.ListProcesses(ctx, export.ProcessQuery{Limit: 1})
		return err
	})
	if a.mongo != nil {
		checker.Register("mongo", a.mongo.Ping)
	}
	if p, ok := a.objects.(interface {
		Ping(ctx context.Context, bucket string) error
	}); ok {
		bucket := a.cfg.ObjectStore.ExportBucket
		checker.Register("object_store", func(ctx context.Context) error { return p.Ping(ctx, bucket) })
	}
	if p, ok := a.locker.(interface{ Ping(ctx context.Context) error }); ok {
		checker.Register("lock", p.Ping)
	}
	return checker
}
