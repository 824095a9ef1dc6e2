package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/telemetry/logging"
	"cohortline/exportd/pkg/telemetry/metrics"
)

// Executor performs the export of one claimed process and returns the
// location of the uploaded result.
type Executor interface {
	Execute(ctx context.Context, p *export.Process) (export.ObjectRef, error)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Workers      int
	PollInterval time.Duration
}

// Runner is a worker pool that claims CREATED processes from the process
// store and executes them. Claims are compare-and-set transitions, so any
// number of runners may share one store.
type Runner struct {
	store    export.ProcessStore
	exec     Executor
	notifier export.Notifier
	config   RunnerConfig
	metrics  *metrics.Collector
	now      func() time.Time
	wake     chan struct{}
	logger   *slog.Logger
}

// NewRunner creates a runner. notifier and collector may be nil.
func NewRunner(store export.ProcessStore, exec Executor, notifier export.Notifier, cfg RunnerConfig, collector *metrics.Collector) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Runner{
		store:    store,
		exec:     exec,
		notifier: notifier,
		config:   cfg,
		metrics:  collector,
		now:      time.Now,
		wake:     make(chan struct{}, 1),
		logger:   slog.Default().With("component", "export.jobs.runner"),
	}
}

// Wake triggers an immediate poll.
func (r *Runner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run polls for work until ctx is cancelled, then waits for in-flight
// exports to finish.
func (r *Runner) Run(ctx context.Context) error {
	claimed := make(chan *export.Process)
	var wg sync.WaitGroup
	for i := 0; i < r.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range claimed {
				r.process(ctx, p)
			}
		}()
	}

	r.logger.Info("export runner started",
		"workers", r.config.Workers,
		"poll_interval", r.config.PollInterval,
	)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()
	for {
		r.dispatch(ctx, claimed)
		select {
		case <-ctx.Done():
			close(claimed)
			wg.Wait()
			r.logger.Info("export runner stopped")
			return nil
		case <-ticker.C:
		case <-r.wake:
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, claimed chan<- *export.Process) {
	for {
		p, err := r.claim(ctx)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Error("failed to claim export", "error", err)
			}
			return
		}
		if p == nil {
			return
		}
		select {
		case claimed <- p:
		case <-ctx.Done():
			r.fail(context.WithoutCancel(ctx), p, fmt.Errorf("runner stopped before start: %w", ctx.Err()))
			return
		}
	}
}

// claim transitions the oldest CREATED process to PROCESSING. It returns nil
// when no work is available.
func (r *Runner) claim(ctx context.Context) (*export.Process, error) {
	for {
		candidates, err := r.store.ListProcesses(ctx, export.ProcessQuery{
			Statuses: []export.ProcessStatus{export.StatusCreated},
			Limit:    r.config.Workers,
		})
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, nil
		}
		for _, p := range candidates {
			started := r.now().UTC()
			err := r.store.TransitionProcess(ctx, p.ID, export.StatusCreated, export.ProcessUpdate{
				Status:              export.StatusProcessing,
				ProcessingStartedAt: &started,
			})
			if errors.Is(err, export.ErrConflict) {
				continue
			}
			if err != nil {
				return nil, err
			}
			p.Status = export.StatusProcessing
			p.ProcessingStartedAt = &started
			return p, nil
		}
	}
}

// RunOnce claims and executes every available process sequentially. It
// returns the number of processes executed.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	n := 0
	for {
		p, err := r.claim(ctx)
		if err != nil {
			return n, err
		}
		if p == nil {
			return n, nil
		}
		r.process(ctx, p)
		n++
	}
}

func (r *Runner) process(ctx context.Context, p *export.Process) {
	ctx = logging.WithProcessID(ctx, p.ID)
	ctx = logging.WithRequesterID(ctx, p.RequesterID)
	logger := logging.FromContext(ctx, r.logger)
	start := r.now()

	result, err := r.execute(ctx, p)
	duration := r.now().Sub(start)
	if err != nil {
		r.metrics.RecordExport(string(p.ExportType), "error", duration)
		r.fail(context.WithoutCancel(ctx), p, err)
		return
	}

	err = r.store.TransitionProcess(context.WithoutCancel(ctx), p.ID, export.StatusProcessing, export.ProcessUpdate{
		Status: export.StatusDone,
		Result: result,
	})
	if err != nil {
		// The stuck sweeper may have failed the process in the meantime.
		logger.Warn("could not mark export done", "error", err)
		return
	}
	r.metrics.RecordExport(string(p.ExportType), "success", duration)
	p.Status = export.StatusDone
	p.Result = result
	logger.Info("export finished",
		"duration_ms", duration.Milliseconds(),
		"bucket", result.Bucket,
		"key", result.Key,
	)
	if r.notifier != nil {
		r.notifier.ExportSucceeded(ctx, p)
	}
}

// execute runs the executor, converting a panic into an error.
func (r *Runner) execute(ctx context.Context, p *export.Process) (ref export.ObjectRef, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	return r.exec.Execute(ctx, p)
}

// fail records ERROR and notifies the requester. Errors are never returned
// to the submitter.
func (r *Runner) fail(ctx context.Context, p *export.Process, cause error) {
	perr := export.NewProcessingError(p.ID, cause)
	logger := logging.FromContext(ctx, r.logger)
	logger.Error("export failed", "error", perr)

	err := r.store.TransitionProcess(ctx, p.ID, export.StatusProcessing, export.ProcessUpdate{
		Status: export.StatusError,
		Error:  cause.Error(),
	})
	if err != nil {
		logger.Warn("could not mark export failed", "error", err)
		return
	}
	p.Status = export.StatusError
	p.Error = cause.Error()
	if r.notifier != nil {
		r.notifier.ExportFailed(ctx, p, perr)
	}
}
