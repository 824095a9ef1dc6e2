package fetch

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/export/moduleconfig"
	"cohortline/exportd/pkg/export/revere"
	"cohortline/exportd/pkg/telemetry/metrics"
)

// Run carries the per-run collaborators every fetcher needs for one
// deployment.
type Run struct {
	Request    export.Request
	Deployment *export.Deployment
	Primitives export.PrimitiveRepository
	Consents   export.ConsentRepository
	Configs    *moduleconfig.Resolver
	Homophones revere.Homophones
	Metrics    *metrics.Collector
}

// Fetcher produces the records of one module for a deployment.
type Fetcher interface {
	// ModuleID returns the module the fetcher owns.
	ModuleID() string
	// Fetch returns records keyed by category. A module without matching
	// records returns its category with an empty list.
	Fetch(ctx context.Context, run *Run, moduleName string) (export.Dataset, error)
}

// SideFileProducer is implemented by fetchers that emit files next to the
// rendered records. SideFiles is called after Fetch returns.
type SideFileProducer interface {
	SideFiles() []export.File
}

// Constructor creates a fetcher for one run.
type Constructor func() Fetcher

// Registry maps module ids to fetcher constructors. Modules without an
// entry use the generic fetcher.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds or replaces the constructor for a module id.
func (r *Registry) Register(moduleID string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[moduleID] = c
}

// New returns a fetcher for the module id.
func (r *Registry) New(moduleID string) Fetcher {
	r.mu.RLock()
	c, ok := r.constructors[moduleID]
	r.mu.RUnlock()
	if ok {
		return c()
	}
	return NewGeneric(moduleID)
}

// ModuleIDs returns the registered module ids in sorted order.
func (r *Registry) ModuleIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.constructors))
	for id := range r.constructors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// DefaultRegistry returns a registry with every specialised fetcher.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(ModuleQuestionnaire, func() Fetcher { return NewQuestionnaire() })
	r.Register(ModuleSymptom, func() Fetcher { return NewSymptom() })
	r.Register(ModuleMedication, func() Fetcher { return NewMedication() })
	r.Register(ModuleRevereTest, func() Fetcher { return NewRevereTest() })
	r.Register(ModuleConsent, func() Fetcher { return NewConsent(ModuleConsent) })
	r.Register(ModuleEConsent, func() Fetcher { return NewConsent(ModuleEConsent) })
	return r
}

// Result is the outcome of fetching one deployment.
type Result struct {
	Data      export.Dataset
	SideFiles []export.File
}

// job is one module to fetch.
type job struct {
	moduleID   string
	moduleName string
}

// Deployment fetches every module of run.Deployment that passes the
// request's module filters, plus the requested onboarding modules.
// Modules are fetched concurrently with at most limit in flight.
func Deployment(ctx context.Context, run *Run, registry *Registry, limit int) (*Result, error) {
	logger := slog.Default().With("component", "export.fetch", "deployment_id", run.Deployment.ID)

	jobs := plan(run)
	results := make([]export.Dataset, len(jobs))
	sideFiles := make([][]export.File, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, j := range jobs {
		g.Go(func() error {
			f := registry.New(j.moduleID)
			ds, err := f.Fetch(gctx, run, j.moduleName)
			if err != nil {
				return export.NewFetchError(j.moduleName, run.Deployment.ID, err)
			}
			results[i] = ds
			if p, ok := f.(SideFileProducer); ok {
				sideFiles[i] = p.SideFiles()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Result{Data: make(export.Dataset)}
	for i, ds := range results {
		out.Data.Merge(ds)
		out.SideFiles = append(out.SideFiles, sideFiles[i]...)
	}
	for _, category := range out.Data.Categories() {
		run.Metrics.RecordRecords(category, len(out.Data[category]))
	}
	logger.Debug("deployment fetched", "modules", len(jobs), "records", out.Data.Count(), "side_files", len(out.SideFiles))
	return out, nil
}

// plan lists the modules to fetch in configuration order.
func plan(run *Run) []job {
	var jobs []job
	seen := make(map[string]struct{})
	for _, mc := range run.Deployment.ModuleConfigs {
		name := mc.Name()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if !run.Request.IncludesModule(name) {
			continue
		}
		jobs = append(jobs, job{moduleID: mc.ModuleID, moduleName: name})
	}

	onboarding := []struct {
		module string
		form   *export.ConsentForm
	}{
		{ModuleConsent, run.Deployment.Consent},
		{ModuleEConsent, run.Deployment.EConsent},
	}
	for _, o := range onboarding {
		if o.form != nil && run.Request.IncludesOnboarding(o.module) {
			jobs = append(jobs, job{moduleID: o.module, moduleName: o.module})
		}
	}
	return jobs
}
