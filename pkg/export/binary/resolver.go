// Package binary resolves object references embedded in records. A
// reference is any map holding non-empty "bucket" and "key" strings.
//
// Depending on the request's binary option a reference is left alone
// (NONE), replaced by a signed URL (SIGNED_URL), or downloaded into the
// archive and replaced by its archive path (BINARY). Resolution runs on a
// bounded worker pool; archive paths depend only on the record id and the
// object key, never on completion order.
package binary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/telemetry/metrics"
)

// Dir is the archive folder embedded binaries are written to.
const Dir = "binaries"

// ErrObjectMissing is returned when a referenced object does not exist.
var ErrObjectMissing = errors.New("object does not exist")

// Options configures a Resolver.
type Options struct {
	Mode export.BinaryOption
	// Strict aborts on the first unresolvable reference. Otherwise the
	// field is nulled and a warning is logged.
	Strict      bool
	Concurrency int
	SignExpiry  time.Duration
	// Name maps a record id to its folder name under Dir. Defaults to the
	// record id itself.
	Name func(recordID string) string
}

// Resolver resolves binary references of a dataset.
type Resolver struct {
	storage export.ObjectStorage
	opts    Options
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewResolver creates a resolver.
func NewResolver(storage export.ObjectStorage, opts Options, collector *metrics.Collector) *Resolver {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.SignExpiry <= 0 {
		opts.SignExpiry = time.Hour
	}
	if opts.Name == nil {
		opts.Name = func(id string) string { return id }
	}
	return &Resolver{
		storage: storage,
		opts:    opts,
		metrics: collector,
		logger:  slog.Default().With("component", "export.binary", "mode", string(opts.Mode)),
	}
}

// ref is one object reference found in a record.
type ref struct {
	category string
	index    int
	recordID string
	path     []string
	object   export.ObjectRef
}

type outcome struct {
	value any
	file  *export.File
}

// Resolve returns the dataset with references replaced and, in BINARY
// mode, the downloaded files sorted by path.
func (r *Resolver) Resolve(ctx context.Context, ds export.Dataset) (export.Dataset, []export.File, error) {
	if r.opts.Mode == export.BinaryNone || r.storage == nil {
		return ds, nil, nil
	}

	refs := collect(ds)
	if len(refs) == 0 {
		return ds, nil, nil
	}

	outcomes := make([]outcome, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, rf := range refs {
		g.Go(func() error {
			out, err := r.resolveOne(gctx, rf)
			if err == nil {
				r.metrics.RecordBinaryResolution(string(r.opts.Mode), "ok")
				outcomes[i] = out
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			r.metrics.RecordBinaryResolution(string(r.opts.Mode), outcomeLabel(err))
			if r.opts.Strict {
				return export.NewBinaryResolutionError(rf.recordID, strings.Join(rf.path, "."), rf.object, err)
			}
			r.logger.Warn("binary reference unresolved, field nulled",
				"record_id", rf.recordID,
				"path", strings.Join(rf.path, "."),
				"bucket", rf.object.Bucket,
				"key", rf.object.Key,
				"error", err,
			)
			outcomes[i] = outcome{value: nil}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return apply(ds, refs, outcomes), files(outcomes), nil
}

func outcomeLabel(err error) string {
	if errors.Is(err, ErrObjectMissing) {
		return "missing"
	}
	return "error"
}

func (r *Resolver) resolveOne(ctx context.Context, rf ref) (outcome, error) {
	switch r.opts.Mode {
	case export.BinarySignedURL:
		ok, err := r.storage.Exists(ctx, rf.object.Bucket, rf.object.Key)
		if err != nil {
			return outcome{}, err
		}
		if !ok {
			return outcome{}, ErrObjectMissing
		}
		url, err := r.storage.Sign(ctx, rf.object.Bucket, rf.object.Key, r.opts.SignExpiry)
		if err != nil {
			return outcome{}, err
		}
		return outcome{value: url}, nil
	case export.BinaryEmbed:
		data, err := r.storage.Download(ctx, rf.object.Bucket, rf.object.Key)
		if err != nil {
			return outcome{}, err
		}
		p := ArchivePath(r.opts.Name(rf.recordID), rf.object.Key)
		return outcome{value: p, file: &export.File{Path: p, Content: data}}, nil
	default:
		return outcome{}, fmt.Errorf("unsupported binary option %q", r.opts.Mode)
	}
}

// ArchivePath is the deterministic archive location of an embedded object.
func ArchivePath(recordName, key string) string {
	if recordName == "" {
		recordName = "unknown"
	}
	return path.Join(Dir, strings.ReplaceAll(recordName, "/", "_"), path.Base(key))
}

// collect finds every reference in sorted category order.
func collect(ds export.Dataset) []ref {
	var refs []ref
	for _, category := range ds.Categories() {
		for i, rec := range ds[category] {
			walk(rec.Fields, nil, func(p []string, obj export.ObjectRef) {
				refs = append(refs, ref{
					category: category,
					index:    i,
					recordID: rec.ID(),
					path:     p,
					object:   obj,
				})
			})
		}
	}
	return refs
}

func walk(v any, p []string, visit func([]string, export.ObjectRef)) {
	switch t := v.(type) {
	case map[string]any:
		if obj, ok := objectRef(t); ok {
			visit(slices.Clone(p), obj)
			return
		}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			walk(t[k], append(p, k), visit)
		}
	case []any:
		for i, child := range t {
			walk(child, append(p, strconv.Itoa(i)), visit)
		}
	}
}

func objectRef(m map[string]any) (export.ObjectRef, bool) {
	bucket, _ := m["bucket"].(string)
	key, _ := m["key"].(string)
	if bucket == "" || key == "" {
		return export.ObjectRef{}, false
	}
	return export.ObjectRef{Bucket: bucket, Key: key}, true
}

// apply writes outcomes into deep copies of the affected records.
func apply(ds export.Dataset, refs []ref, outcomes []outcome) export.Dataset {
	out := make(export.Dataset, len(ds))
	for category, records := range ds {
		out[category] = slices.Clone(records)
	}
	cloned := make(map[string]map[int]bool)
	for i, rf := range refs {
		records := out[rf.category]
		if !cloned[rf.category][rf.index] {
			records[rf.index] = records[rf.index].WithFields(records[rf.index].CloneFields())
			if cloned[rf.category] == nil {
				cloned[rf.category] = make(map[int]bool)
			}
			cloned[rf.category][rf.index] = true
		}
		setAt(records[rf.index].Fields, rf.path, outcomes[i].value)
	}
	return out
}

func setAt(root map[string]any, p []string, value any) {
	var cur any = root
	for i, seg := range p {
		last := i == len(p)-1
		switch t := cur.(type) {
		case map[string]any:
			if last {
				t[seg] = value
				return
			}
			cur = t[seg]
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx >= len(t) {
				return
			}
			if last {
				t[idx] = value
				return
			}
			cur = t[idx]
		default:
			return
		}
	}
}

func files(outcomes []outcome) []export.File {
	seen := make(map[string]struct{})
	var out []export.File
	for _, o := range outcomes {
		if o.file == nil {
			continue
		}
		if _, ok := seen[o.file.Path]; ok {
			continue
		}
		seen[o.file.Path] = struct{}{}
		out = append(out, *o.file)
	}
	slices.SortFunc(out, func(a, b export.File) int { return strings.Compare(a.Path, b.Path) })
	return out
}
