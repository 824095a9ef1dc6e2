package moduleconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/telemetry/metrics"
)

// lookupKey identifies one revision query.
type lookupKey struct {
	moduleID string
	configID string
	version  int
}

// Resolver resolves the configuration a record was submitted against, for
// one deployment within one run.
type Resolver struct {
	deploymentID string
	repo         export.DeploymentRepository
	index        *Index
	metrics      *metrics.Collector
	logger       *slog.Logger

	mu        sync.Mutex
	queried   map[lookupKey]*revisionQuery
	ambiguous map[lookupKey]struct{}
}

// revisionQuery lets concurrent lookups of the same key wait for the one
// in-flight revision query.
type revisionQuery struct {
	done chan struct{}
	err  error
}

// NewResolver creates a resolver seeded with the deployment's live configs.
func NewResolver(deployment *export.Deployment, repo export.DeploymentRepository, collector *metrics.Collector) *Resolver {
	index := NewIndex()
	index.Add(deployment.ModuleConfigs...)

	return &Resolver{
		deploymentID: deployment.ID,
		repo:         repo,
		index:        index,
		metrics:      collector,
		logger:       slog.Default().With("component", "export.moduleconfig", "deployment_id", deployment.ID),
		queried:      make(map[lookupKey]*revisionQuery),
		ambiguous:    make(map[lookupKey]struct{}),
	}
}

// Index exposes the resolver's index.
func (r *Resolver) Index() *Index {
	return r.index
}

// Resolve returns the config snapshot for (moduleID, configID, version), or
// nil when none can be found. Callers must tolerate a nil config.
//
// Resolution order:
//  1. exact index entry
//  2. version 0 falls back to the unversioned entry
//  3. one revision query per key per run, merged into the index, then retry
//
// A nil version resolves to the unversioned entry or the latest live config.
func (r *Resolver) Resolve(ctx context.Context, moduleID, configID string, version *int) (*export.ModuleConfig, error) {
	if configID == "" {
		return nil, nil
	}
	if version == nil {
		if mc, ok := r.index.Latest(moduleID, configID); ok {
			return &mc, nil
		}
		return nil, nil
	}

	if mc, ok := r.lookup(moduleID, configID, *version); ok {
		return &mc, nil
	}

	key := lookupKey{moduleID: moduleID, configID: configID, version: *version}
	q, owner := r.claimQuery(key)
	if owner {
		q.err = r.queryRevision(ctx, key)
		close(q.done)
	} else {
		select {
		case <-q.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if q.err != nil {
		return nil, q.err
	}

	if mc, ok := r.lookup(moduleID, configID, *version); ok {
		return &mc, nil
	}
	return nil, nil
}

func (r *Resolver) queryRevision(ctx context.Context, key lookupKey) error {
	revision, err := r.repo.RetrieveRevisionCovering(ctx, r.deploymentID, key.configID, key.version)
	switch {
	case errors.Is(err, export.ErrNotFound):
		r.metrics.RecordRevisionLookup("not_found")
		r.logger.Debug("no revision covers config version",
			"module_id", key.moduleID, "config_id", key.configID, "version", key.version)
		return nil
	case err != nil:
		r.metrics.RecordRevisionLookup("error")
		return fmt.Errorf("retrieve revision for config %s version %d: %w", key.configID, key.version, err)
	}

	r.metrics.RecordRevisionLookup("found")
	r.index.Add(revision.ModuleConfigs...)
	return nil
}

// claimQuery returns the query for key and whether the caller must run it.
func (r *Resolver) claimQuery(key lookupKey) (*revisionQuery, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queried[key]; ok {
		return q, false
	}
	q := &revisionQuery{done: make(chan struct{})}
	r.queried[key] = q
	return q, true
}

func (r *Resolver) lookup(moduleID, configID string, version int) (export.ModuleConfig, bool) {
	exact, ok := r.index.Get(moduleID, configID, &version)
	if version != 0 {
		return exact, ok
	}

	legacy, legacyOK := r.index.Get(moduleID, configID, nil)
	if ok && legacyOK {
		r.reportAmbiguous(lookupKey{moduleID: moduleID, configID: configID})
		return exact, true
	}
	if ok {
		return exact, true
	}
	return legacy, legacyOK
}

func (r *Resolver) reportAmbiguous(key lookupKey) {
	r.mu.Lock()
	_, seen := r.ambiguous[key]
	r.ambiguous[key] = struct{}{}
	r.mu.Unlock()

	if seen {
		return
	}
	r.metrics.RecordAmbiguousVersion()
	r.logger.Warn("config has both version 0 and an unversioned entry, using version 0",
		"module_id", key.moduleID, "config_id", key.configID)
}

// Arena owns the per-deployment resolvers of one export run. It is created
// when a run starts and dropped when it ends.
type Arena struct {
	repo    export.DeploymentRepository
	metrics *metrics.Collector

	mu        sync.Mutex
	resolvers map[string]*Resolver
}

// NewArena creates an empty arena.
func NewArena(repo export.DeploymentRepository, collector *metrics.Collector) *Arena {
	return &Arena{
		repo:      repo,
		metrics:   collector,
		resolvers: make(map[string]*Resolver),
	}
}

// Resolver returns the deployment's resolver, creating it on first use.
func (a *Arena) Resolver(deployment *export.Deployment) *Resolver {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r, ok := a.resolvers[deployment.ID]; ok {
		return r
	}
	r := NewResolver(deployment, a.repo, a.metrics)
	a.resolvers[deployment.ID] = r
	return r
}
