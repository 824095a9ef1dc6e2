package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a periodic task. Run returns the number of items it handled.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) (int, error)
}

// Scheduler runs jobs on cron schedules.
//
// Common cron expressions:
//   - "*/10 * * * *" - Every 10 minutes
//   - "0 3 * * *"    - Daily at 3 AM
//
// Jobs with an empty schedule are skipped.
type Scheduler struct {
	jobs    []Job
	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a scheduler for jobs.
func NewScheduler(jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:    jobs,
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
		logger:  slog.Default().With("component", "export.jobs.scheduler"),
	}
}

// Start validates every schedule, registers the jobs and starts the cron
// loop. The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.Schedule == "" {
			s.logger.Info("job schedule not configured, skipping", "job", job.Name)
			continue
		}
		if _, err := cron.ParseStandard(job.Schedule); err != nil {
			return fmt.Errorf("invalid cron schedule %q for %s: %w", job.Schedule, job.Name, err)
		}
		id, err := s.cron.AddFunc(job.Schedule, func() {
			s.run(ctx, job)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
		s.entries[job.Name] = id
		s.logger.Info("job scheduled", "job", job.Name, "schedule", job.Schedule)
	}
	if len(s.entries) == 0 {
		return nil
	}

	s.cron.Start()
	s.running = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	s.logger.Debug("starting scheduled job", "job", job.Name)
	n, err := job.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled job failed", "job", job.Name, "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("scheduled job completed", "job", job.Name, "count", n)
	}
}

// Stop stops the scheduler and waits for running jobs to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		done := s.cron.Stop()
		<-done.Done()
		s.running = false
		s.logger.Info("scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next run time of the named job.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return nil
	}
	next := s.cron.Entry(id).Next
	if next.IsZero() {
		return nil
	}
	return &next
}
