package transform

import (
	"context"
	"log/slog"
	"time"

	"cohortline/exportd/pkg/export"
)

// Stage is one ordered step of the pipeline. Apply must not mutate its
// input; it returns a new dataset.
type Stage interface {
	Name() string
	Apply(ctx context.Context, ds export.Dataset) (export.Dataset, error)
}

// Localizer looks up a localized string for a key.
type Localizer interface {
	Localize(language, key string) (string, bool)
}

// ShortCodes looks up the short code for a key or value. Module-scoped
// entries take precedence over global ones.
type ShortCodes interface {
	Lookup(moduleName, value string) (string, bool)
}

// Options carries everything the stages need for one run.
type Options struct {
	Request    export.Request
	Deployment *export.Deployment
	Users      export.UserRepository
	Consents   export.ConsentRepository
	Localizer  Localizer
	ShortCodes ShortCodes
	Hasher     *Hasher
}

// Pipeline runs the stages in order over a dataset.
type Pipeline struct {
	stages []Stage
	logger *slog.Logger
}

// New builds the standard nine-stage pipeline for one run.
func New(opts Options) *Pipeline {
	if opts.Hasher == nil {
		opts.Hasher = NewHasher("")
	}
	if opts.Deployment == nil {
		opts.Deployment = &export.Deployment{}
	}

	state := &runState{}
	exclude := newExclusion(opts.Request)
	deidentify := newDeidentification(opts.Request, opts.Hasher)
	nulls := newNullStrip(opts.Request)

	return NewPipeline(
		&consentFilter{opts: opts},
		&userMetadata{
			opts:  opts,
			state: state,
			post:  []fieldFunc{exclude.apply, deidentify.apply, nulls.apply},
		},
		&localization{opts: opts, state: state},
		newInclusion(opts.Request),
		&recordStage{name: "exclude", skipUser: true, fn: exclude.apply},
		&recordStage{name: "deidentify", skipUser: true, fn: deidentify.apply},
		&recordStage{name: "strip_nulls", skipUser: true, fn: nulls.apply},
		&shortCodeTranslation{opts: opts},
		&recordStage{name: "flatten", fn: newFlattening(opts.Request).apply},
	)
}

// NewPipeline creates a pipeline from explicit stages.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{
		stages: stages,
		logger: slog.Default().With("component", "export.transform"),
	}
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run applies every stage in order. The first stage error aborts the run.
func (p *Pipeline) Run(ctx context.Context, ds export.Dataset) (export.Dataset, error) {
	current := ds
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := stage.Apply(ctx, current)
		if err != nil {
			p.logger.Error("transform stage failed", "stage", stage.Name(), "error", err)
			return nil, err
		}
		p.logger.Debug("transform stage applied",
			"stage", stage.Name(),
			"records", next.Count(),
			"duration", time.Since(start),
		)
		current = next
	}
	return current, nil
}

// runState is shared between the user and localization stages so that user
// documents are fetched once per run.
type runState struct {
	users map[string]map[string]any
}

func (s *runState) language(userID string) string {
	if s.users == nil {
		return ""
	}
	lang, _ := s.users[userID]["language"].(string)
	return lang
}

// fieldFunc transforms the field map of one record of a category.
type fieldFunc func(category string, fields map[string]any) (map[string]any, error)

// recordStage applies a fieldFunc to every record of every category.
type recordStage struct {
	name string
	// skipUser leaves the nested user object alone; it was already
	// processed when it was attached.
	skipUser bool
	fn       fieldFunc
}

func (s *recordStage) Name() string { return s.name }

func (s *recordStage) Apply(ctx context.Context, ds export.Dataset) (export.Dataset, error) {
	return mapRecords(ctx, ds, s.name, s.skipUser, s.fn)
}

func mapRecords(ctx context.Context, ds export.Dataset, stage string, skipUser bool, fn fieldFunc) (export.Dataset, error) {
	out := make(export.Dataset, len(ds))
	for _, category := range ds.Categories() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records := make([]export.Record, 0, len(ds[category]))
		for _, r := range ds[category] {
			fields := r.Fields
			user, hasUser := fields[export.FieldUser]
			if skipUser && hasUser {
				fields = withoutKey(fields, export.FieldUser)
			}
			next, err := fn(category, fields)
			if err != nil {
				return nil, export.NewStageError(stage, category, err)
			}
			if skipUser && hasUser {
				next[export.FieldUser] = user
			}
			records = append(records, r.WithFields(next))
		}
		out[category] = records
	}
	return out, nil
}

func withoutKey(m map[string]any, key string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// identityFields are never localized or short-code translated.
var identityFields = map[string]struct{}{
	export.FieldID:             {},
	export.FieldUserID:         {},
	export.FieldModuleID:       {},
	export.FieldModuleConfigID: {},
	export.FieldDeploymentID:   {},
}
