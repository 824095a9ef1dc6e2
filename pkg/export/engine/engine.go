// Package engine runs exports end to end.
//
// One run resolves the caller's input into an immutable request, then
// processes the requested deployments sequentially: fetch every module,
// resolve binary references, run the transform pipeline and render the
// output tree. Multi-deployment runs prefix each deployment's files with
// its id. The result is written as a zip archive, returned as one
// in-memory file, or uploaded to object storage for background exports.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/export/binary"
	"cohortline/exportd/pkg/export/fetch"
	"cohortline/exportd/pkg/export/jobs"
	"cohortline/exportd/pkg/export/moduleconfig"
	"cohortline/exportd/pkg/export/output"
	"cohortline/exportd/pkg/export/request"
	"cohortline/exportd/pkg/export/revere"
	"cohortline/exportd/pkg/export/transform"
	"cohortline/exportd/pkg/telemetry/logging"
	"cohortline/exportd/pkg/telemetry/metrics"
)

// Repositories are the document-store collaborators of a run.
type Repositories struct {
	Primitives  export.PrimitiveRepository
	Users       export.UserRepository
	Consents    export.ConsentRepository
	Deployments export.DeploymentRepository
}

// Catalog supplies global localizations, short codes and Revere homophones.
type Catalog interface {
	transform.Localizer
	transform.ShortCodes
	Homophones() revere.Homophones
}

// Options configures an Engine.
type Options struct {
	// Profiles enables profile lookup when set and Export.UseProfiles is true.
	Profiles export.ProfileStore
	// Registry maps module ids to fetchers. Defaults to fetch.DefaultRegistry.
	Registry *fetch.Registry
	// Objects resolves binary references and receives background archives.
	Objects export.ObjectStorage
	// Catalog may be nil.
	Catalog Catalog

	Export      config.ExportConfig
	ObjectStore config.ObjectStoreConfig
	Metrics     *metrics.Collector
}

// Engine runs exports. It is safe for concurrent use; all per-run state
// lives in the run.
type Engine struct {
	repos    Repositories
	opts     Options
	requests *request.Resolver
	now      func() time.Time
	logger   *slog.Logger
}

// New creates an engine.
func New(repos Repositories, opts Options) *Engine {
	if opts.Registry == nil {
		opts.Registry = fetch.DefaultRegistry()
	}
	if opts.ObjectStore.ExportBucket == "" {
		opts.ObjectStore.ExportBucket = "exports"
	}
	return &Engine{
		repos:    repos,
		opts:     opts,
		requests: request.NewResolver(opts.Profiles, repos.Deployments, opts.Export.UseProfiles),
		now:      time.Now,
		logger:   slog.Default().With("component", "export.engine"),
	}
}

// Result is the rendered output of one run.
type Result struct {
	Request       export.Request
	DeploymentIDs []string
	// Files are in archive order: per deployment the rendered units, then
	// side files, then embedded binaries.
	Files   []export.File
	Records int
}

// Resolve resolves input into a request and its deployment ids.
func (e *Engine) Resolve(ctx context.Context, in request.Input) (*request.Resolved, error) {
	return e.requests.Resolve(ctx, in)
}

// Export resolves and runs input.
func (e *Engine) Export(ctx context.Context, in request.Input) (*Result, error) {
	resolved, err := e.Resolve(ctx, in)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, resolved)
}

// Run renders every deployment of a resolved request.
func (e *Engine) Run(ctx context.Context, resolved *request.Resolved) (*Result, error) {
	start := e.now()
	res := &Result{Request: resolved.Request, DeploymentIDs: resolved.DeploymentIDs}
	r := e.newRun(resolved.Request)

	for _, id := range resolved.DeploymentIDs {
		d, err := r.deployment(ctx, id)
		if err != nil {
			return nil, err
		}
		files, err := output.NewAssembler(resolved.Request).Assemble(d.tree)
		if err != nil {
			return nil, err
		}
		files = append(files, d.sideFiles...)
		files = append(files, d.binaries...)
		if len(resolved.DeploymentIDs) > 1 {
			files = output.WithPrefix(files, id)
		}
		res.Files = append(res.Files, files...)
		res.Records += d.tree.Count()
	}

	e.logger.Info("export run finished",
		"deployments", len(resolved.DeploymentIDs),
		"records", res.Records,
		"files", len(res.Files),
		"duration_ms", e.now().Sub(start).Milliseconds(),
	)
	return res, nil
}

// SingleFile resolves input and renders it as one in-memory file. It fails
// with a ValidationError when the configuration does not collapse to one
// output unit.
func (e *Engine) SingleFile(ctx context.Context, in request.Input) (export.File, error) {
	resolved, err := e.Resolve(ctx, in)
	if err != nil {
		return export.File{}, err
	}
	req := resolved.Request
	n := len(resolved.DeploymentIDs)
	if !req.CollapsesToSingleUnit(n) {
		return output.NewAssembler(req).SingleFile(output.Tree{}, n)
	}

	d, err := e.newRun(req).deployment(ctx, resolved.DeploymentIDs[0])
	if err != nil {
		return export.File{}, err
	}
	if len(d.sideFiles) > 0 {
		e.logger.Warn("side files are not part of a single file response", "count", len(d.sideFiles))
	}
	return output.NewAssembler(req).SingleFile(d.tree, n)
}

// WriteArchive writes res as a zip archive and returns the archive index.
func (e *Engine) WriteArchive(w io.Writer, res *Result) ([]string, error) {
	archive := output.NewArchive(w, e.now())
	if err := archive.AddAll(res.Files); err != nil {
		return nil, err
	}
	if err := archive.Close(); err != nil {
		return nil, err
	}
	return archive.Names(), nil
}

// ArchiveKey is the object key of a background export's archive.
func (e *Engine) ArchiveKey(processID string) string {
	return e.opts.ObjectStore.ExportPrefix + processID + ".zip"
}

// Execute runs a background export and uploads its archive. It implements
// jobs.Executor.
func (e *Engine) Execute(ctx context.Context, p *export.Process) (export.ObjectRef, error) {
	if e.opts.Objects == nil {
		return export.ObjectRef{}, fmt.Errorf("no object storage configured for export archives")
	}
	res, err := e.Export(ctx, jobs.InputOf(p))
	if err != nil {
		return export.ObjectRef{}, err
	}

	var buf bytes.Buffer
	if _, err := e.WriteArchive(&buf, res); err != nil {
		return export.ObjectRef{}, fmt.Errorf("write archive: %w", err)
	}
	ref := export.ObjectRef{Bucket: e.opts.ObjectStore.ExportBucket, Key: e.ArchiveKey(p.ID)}
	if err := e.opts.Objects.Upload(ctx, ref.Bucket, ref.Key, buf.Bytes()); err != nil {
		return export.ObjectRef{}, fmt.Errorf("upload archive: %w", err)
	}
	logging.FromContext(ctx, e.logger).Info("export archive uploaded",
		"bucket", ref.Bucket,
		"key", ref.Key,
		"size", buf.Len(),
		"files", len(res.Files),
	)
	return ref, nil
}

// run holds the state shared by the deployments of one export.
type run struct {
	engine *Engine
	req    export.Request
	arena  *moduleconfig.Arena
	hasher *transform.Hasher
}

func (e *Engine) newRun(req export.Request) *run {
	return &run{
		engine: e,
		req:    req,
		arena:  moduleconfig.NewArena(e.repos.Deployments, e.opts.Metrics),
		hasher: transform.NewHasher(e.opts.Export.HashSecret),
	}
}

// rendered is one deployment ready for assembly.
type rendered struct {
	tree      output.Tree
	sideFiles []export.File
	binaries  []export.File
}

func (r *run) deployment(ctx context.Context, id string) (*rendered, error) {
	e := r.engine
	ctx = logging.WithDeploymentID(ctx, id)
	logger := logging.FromContext(ctx, e.logger)

	dep, err := e.repos.Deployments.RetrieveDeployment(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		localizer  transform.Localizer
		shortCodes transform.ShortCodes
		homophones revere.Homophones
	)
	if e.opts.Catalog != nil {
		localizer, shortCodes, homophones = e.opts.Catalog, e.opts.Catalog, e.opts.Catalog.Homophones()
	}

	fetched, err := fetch.Deployment(ctx, &fetch.Run{
		Request:    r.req,
		Deployment: dep,
		Primitives: e.repos.Primitives,
		Consents:   e.repos.Consents,
		Configs:    r.arena.Resolver(dep),
		Homophones: homophones,
		Metrics:    e.opts.Metrics,
	}, e.opts.Registry, e.opts.Export.FetchConcurrency)
	if err != nil {
		return nil, err
	}

	name := func(recordID string) string { return recordID }
	if r.req.Deidentified {
		name = r.hasher.HashString
	}
	data, binaries, err := binary.NewResolver(e.opts.Objects, binary.Options{
		Mode:        r.req.Binary,
		Strict:      e.opts.Export.StrictBinaries,
		Concurrency: e.opts.Export.BinaryConcurrency,
		SignExpiry:  e.opts.ObjectStore.SignedURLExpiry,
		Name:        name,
	}, e.opts.Metrics).Resolve(ctx, fetched.Data)
	if err != nil {
		return nil, err
	}

	data, err = transform.New(transform.Options{
		Request:    r.req,
		Deployment: dep,
		Users:      e.repos.Users,
		Consents:   e.repos.Consents,
		Localizer:  localizer,
		ShortCodes: shortCodes,
		Hasher:     r.hasher,
	}).Run(ctx, data)
	if err != nil {
		return nil, err
	}

	sideFiles := fetched.SideFiles
	var userKey func(string) string
	if r.req.Deidentified {
		sideFiles = r.anonymizeSideFiles(sideFiles)
		userKey = r.hasher.HashString
	}

	tree := output.BuildTreeKeyed(r.req.View, data, userKey)
	logger.Debug("deployment rendered",
		"view_keys", len(tree),
		"records", tree.Count(),
		"side_files", len(sideFiles),
		"binaries", len(binaries),
	)
	return &rendered{tree: tree, sideFiles: sideFiles, binaries: binaries}, nil
}

// anonymizeSideFiles replaces the user folder of side file paths with its
// hash so de-identified archives carry no raw user ids in file names.
func (r *run) anonymizeSideFiles(files []export.File) []export.File {
	out := make([]export.File, len(files))
	for i, f := range files {
		dir, file := path.Split(f.Path)
		category, user := path.Split(path.Clean(dir))
		if category == "" || user == "" {
			out[i] = f
			continue
		}
		out[i] = export.File{Path: path.Join(category, r.hasher.HashString(user), file), Content: f.Content}
	}
	return out
}
