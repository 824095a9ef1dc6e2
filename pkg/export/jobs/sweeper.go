package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/telemetry/metrics"
)

// StuckSweeper fails processes that stayed in PROCESSING longer than a
// timeout.
type StuckSweeper struct {
	store    export.ProcessStore
	notifier export.Notifier
	timeout  time.Duration
	metrics  *metrics.Collector
	now      func() time.Time
	logger   *slog.Logger
}

// NewStuckSweeper creates a stuck-process sweeper.
func NewStuckSweeper(store export.ProcessStore, notifier export.Notifier, timeout time.Duration, collector *metrics.Collector) *StuckSweeper {
	return &StuckSweeper{
		store:    store,
		notifier: notifier,
		timeout:  timeout,
		metrics:  collector,
		now:      time.Now,
		logger:   slog.Default().With("component", "export.jobs.stuck"),
	}
}

// Sweep marks stuck processes ERROR and returns how many were reclaimed.
func (s *StuckSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.timeout)
	stuck, err := s.store.ListProcesses(ctx, export.ProcessQuery{
		Statuses:                []export.ProcessStatus{export.StatusProcessing},
		ProcessingStartedBefore: &cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("list stuck processes: %w", err)
	}

	n := 0
	for _, p := range stuck {
		msg := fmt.Sprintf("export exceeded processing timeout of %s", s.timeout)
		err := s.store.TransitionProcess(ctx, p.ID, export.StatusProcessing, export.ProcessUpdate{
			Status: export.StatusError,
			Error:  msg,
		})
		if errors.Is(err, export.ErrConflict) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("fail stuck process %s: %w", p.ID, err)
		}
		n++
		s.logger.Error("stuck export reclaimed",
			"process_id", p.ID,
			"requester_id", p.RequesterID,
			"processing_started_at", p.ProcessingStartedAt,
		)
		if s.notifier != nil {
			p.Status, p.Error = export.StatusError, msg
			s.notifier.ExportFailed(ctx, p, export.NewProcessingError(p.ID, errors.New(msg)))
		}
	}
	s.metrics.RecordStuckProcesses(n)
	return n, nil
}

// RetentionSweeper deletes finished per-user and report exports, together
// with their stored archives, once they are older than the retention period.
type RetentionSweeper struct {
	store   export.ProcessStore
	objects export.ObjectStorage
	period  time.Duration
	metrics *metrics.Collector
	now     func() time.Time
	logger  *slog.Logger
}

// RetainedTypes are the export types the retention sweeper reclaims.
var RetainedTypes = []export.ExportType{export.ExportTypeUser, export.ExportTypeSummaryReport}

// NewRetentionSweeper creates a retention sweeper. objects may be nil when
// archives are not stored remotely.
func NewRetentionSweeper(store export.ProcessStore, objects export.ObjectStorage, period time.Duration, collector *metrics.Collector) *RetentionSweeper {
	return &RetentionSweeper{
		store:   store,
		objects: objects,
		period:  period,
		metrics: collector,
		now:     time.Now,
		logger:  slog.Default().With("component", "export.jobs.retention"),
	}
}

// Sweep deletes expired artifacts and returns how many processes were
// removed. A process whose object cannot be deleted is kept for the next
// run.
func (s *RetentionSweeper) Sweep(ctx context.Context) (int, error) {
	if s.period <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-s.period)
	expired, err := s.store.ListProcesses(ctx, export.ProcessQuery{
		Statuses:      []export.ProcessStatus{export.StatusDone, export.StatusError},
		ExportTypes:   RetainedTypes,
		UpdatedBefore: &cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("list expired processes: %w", err)
	}

	n := 0
	for _, p := range expired {
		if !p.Result.IsZero() && s.objects != nil {
			if err := s.objects.Delete(ctx, p.Result.Bucket, p.Result.Key); err != nil {
				s.logger.Warn("failed to delete export artifact",
					"process_id", p.ID,
					"bucket", p.Result.Bucket,
					"key", p.Result.Key,
					"error", err,
				)
				continue
			}
		}
		if err := s.store.DeleteProcess(ctx, p.ID); err != nil && !errors.Is(err, export.ErrNotFound) {
			return n, fmt.Errorf("delete process %s: %w", p.ID, err)
		}
		n++
	}

	if n > 0 {
		s.logger.Info("expired exports pruned", "deleted_count", n, "retention_period", s.period)
	} else {
		s.logger.Debug("no expired exports")
	}
	s.metrics.RecordPrunedArtifacts(n)
	return n, nil
}
