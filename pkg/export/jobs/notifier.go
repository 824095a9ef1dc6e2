package jobs

import (
	"context"
	"log/slog"

	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/telemetry/logging"
)

// LogNotifier reports finished processes to the log. It is the notifier of
// `exportd run` when no delivery channel is wired in.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: slog.Default().With("component", "export.jobs.notify")}
}

// ExportSucceeded implements export.Notifier.
func (n *LogNotifier) ExportSucceeded(ctx context.Context, p *export.Process) {
	logging.FromContext(ctx, n.logger).Info("export ready",
		"process_id", p.ID,
		"requester_id", p.RequesterID,
		"export_type", p.ExportType,
		"bucket", p.Result.Bucket,
		"key", p.Result.Key,
	)
}

// ExportFailed implements export.Notifier.
func (n *LogNotifier) ExportFailed(ctx context.Context, p *export.Process, err error) {
	logging.FromContext(ctx, n.logger).Warn("export failed",
		"process_id", p.ID,
		"requester_id", p.RequesterID,
		"export_type", p.ExportType,
		"error", err,
	)
}
