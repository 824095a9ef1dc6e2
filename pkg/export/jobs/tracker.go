package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/export/request"
)

// Reserved process parameter keys. They carry submission details that are
// not part of the export request itself.
const (
	ParamDeploymentIDs = "_deploymentIds"
	ParamProfileName   = "_profileName"
)

// DefaultLockTTL bounds how long a submission lock is held.
const DefaultLockTTL = 30 * time.Second

// Submission is one asynchronous export request.
type Submission struct {
	RequesterID string
	ExportType  export.ExportType
	Scope       export.Scope
	Params      map[string]any
	ProfileName string
}

// Tracker persists the lifecycle of asynchronous exports.
type Tracker struct {
	store   export.ProcessStore
	locker  Locker
	lockTTL time.Duration
	wake    func()
	logger  *slog.Logger
}

// NewTracker creates a tracker. A nil locker falls back to a process-local
// one.
func NewTracker(store export.ProcessStore, locker Locker, lockTTL time.Duration) *Tracker {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Tracker{
		store:   store,
		locker:  locker,
		lockTTL: lockTTL,
		logger:  slog.Default().With("component", "export.jobs.tracker"),
	}
}

// OnSubmit registers a callback invoked after each successful submission,
// typically Runner.Wake.
func (t *Tracker) OnSubmit(fn func()) {
	t.wake = fn
}

func lockKey(requesterID string, exportType export.ExportType) string {
	return fmt.Sprintf("exportd:export:%s:%s", requesterID, exportType)
}

// Submit creates a CREATED process. The check for an in-flight export of the
// same requester and type runs under a lock, so concurrent submissions
// cannot both pass it.
func (t *Tracker) Submit(ctx context.Context, sub Submission) (*export.Process, error) {
	if sub.RequesterID == "" {
		return nil, export.NewValidationError("requesterId", "requester is required")
	}
	if sub.ExportType == "" {
		sub.ExportType = export.ExportTypeDefault
	}
	if err := sub.Scope.Validate(); err != nil {
		return nil, err
	}

	key := lockKey(sub.RequesterID, sub.ExportType)
	token, ok, err := t.locker.TryLock(ctx, key, t.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &export.AlreadyRunningError{RequesterID: sub.RequesterID, ExportType: sub.ExportType}
	}
	defer func() {
		if err := t.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			t.logger.Warn("failed to release submission lock", "key", key, "error", err)
		}
	}()

	running, err := t.store.ListProcesses(ctx, export.ProcessQuery{
		RequesterID: sub.RequesterID,
		ExportTypes: []export.ExportType{sub.ExportType},
		Statuses:    []export.ProcessStatus{export.StatusCreated, export.StatusProcessing},
		Limit:       1,
	})
	if err != nil {
		return nil, err
	}
	if len(running) > 0 {
		return nil, &export.AlreadyRunningError{
			RequesterID: sub.RequesterID,
			ExportType:  sub.ExportType,
			ProcessID:   running[0].ID,
		}
	}

	p := &export.Process{
		Status:         export.StatusCreated,
		ExportType:     sub.ExportType,
		RequesterID:    sub.RequesterID,
		DeploymentID:   sub.Scope.DeploymentID,
		OrganizationID: sub.Scope.OrganizationID,
		Params:         processParams(sub),
	}
	if err := t.store.CreateProcess(ctx, p); err != nil {
		return nil, err
	}

	t.logger.Info("export submitted",
		"process_id", p.ID,
		"requester_id", p.RequesterID,
		"export_type", p.ExportType,
	)
	if t.wake != nil {
		t.wake()
	}
	return p, nil
}

func processParams(sub Submission) map[string]any {
	params := request.Merge(sub.Params)
	if len(sub.Scope.DeploymentIDs) > 0 {
		ids := make([]any, len(sub.Scope.DeploymentIDs))
		for i, id := range sub.Scope.DeploymentIDs {
			ids[i] = id
		}
		params[ParamDeploymentIDs] = ids
	}
	if sub.ProfileName != "" {
		params[ParamProfileName] = sub.ProfileName
	}
	return params
}

// InputOf rebuilds the request resolver input stored on a process.
func InputOf(p *export.Process) request.Input {
	params := request.Merge(p.Params)
	in := request.Input{
		Scope: export.Scope{
			DeploymentID:   p.DeploymentID,
			OrganizationID: p.OrganizationID,
		},
	}
	if ids, ok := params[ParamDeploymentIDs].([]any); ok {
		for _, id := range ids {
			if s, ok := id.(string); ok {
				in.Scope.DeploymentIDs = append(in.Scope.DeploymentIDs, s)
			}
		}
	}
	if ids, ok := params[ParamDeploymentIDs].([]string); ok {
		in.Scope.DeploymentIDs = slices.Clone(ids)
	}
	in.ProfileName, _ = params[ParamProfileName].(string)
	delete(params, ParamDeploymentIDs)
	delete(params, ParamProfileName)
	in.Params = params
	return in
}

// Get returns a process.
func (t *Tracker) Get(ctx context.Context, id string) (*export.Process, error) {
	return t.store.GetProcess(ctx, id)
}

// List returns processes matching q.
func (t *Tracker) List(ctx context.Context, q export.ProcessQuery) ([]*export.Process, error) {
	return t.store.ListProcesses(ctx, q)
}

// MarkSeen records that the requester has looked at a finished export.
func (t *Tracker) MarkSeen(ctx context.Context, id string) error {
	p, err := t.store.GetProcess(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != export.StatusDone && p.Status != export.StatusError {
		return export.NewValidationError("status", fmt.Sprintf("process %s is still %s", id, p.Status))
	}
	return t.store.MarkSeen(ctx, id)
}

// IsAlreadyRunning reports whether err is an AlreadyRunningError.
func IsAlreadyRunning(err error) bool {
	var are *export.AlreadyRunningError
	return errors.As(err, &are)
}
