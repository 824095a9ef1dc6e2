package transform

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"cohortline/exportd/pkg/export"
)

// consentFilter drops records of users who have not signed the deployment's
// current consent revision.
type consentFilter struct {
	opts Options
}

func (s *consentFilter) Name() string { return "consent_filter" }

func (s *consentFilter) Apply(ctx context.Context, ds export.Dataset) (export.Dataset, error) {
	form := s.opts.Deployment.Consent
	if !s.opts.Request.OnlyConsented || form == nil || s.opts.Consents == nil {
		return ds, nil
	}
	userIDs := ds.UserIDs()
	if len(userIDs) == 0 {
		return ds, nil
	}

	logs, err := s.opts.Consents.RetrieveConsentLogs(ctx, form.ID, userIDs)
	if err != nil {
		return nil, export.NewStageError(s.Name(), "", fmt.Errorf("retrieve consent logs: %w", err))
	}
	signed := make(map[string]struct{}, len(logs))
	for _, log := range logs {
		uid, _ := log[export.FieldUserID].(string)
		rev, _ := export.IntValue(log["revision"])
		if uid != "" && rev >= form.Revision {
			signed[uid] = struct{}{}
		}
	}

	out := make(export.Dataset, len(ds))
	for category, records := range ds {
		kept := make([]export.Record, 0, len(records))
		for _, r := range records {
			if _, ok := signed[r.UserID]; ok {
				kept = append(kept, r)
			}
		}
		out[category] = kept
	}
	return out, nil
}

// userMetadata fetches user documents once per run and, when requested,
// attaches them as a nested user object.
type userMetadata struct {
	opts  Options
	state *runState
	// post runs over the user object before it is attached.
	post []fieldFunc
}

func (s *userMetadata) Name() string { return "user_metadata" }

func (s *userMetadata) Apply(ctx context.Context, ds export.Dataset) (export.Dataset, error) {
	req := s.opts.Request
	if !req.IncludeUserMetaData && !req.Translate {
		return ds, nil
	}
	if s.opts.Users == nil {
		return ds, nil
	}
	userIDs := ds.UserIDs()
	if len(userIDs) == 0 {
		return ds, nil
	}

	docs, err := s.opts.Users.RetrieveUsers(ctx, s.opts.Deployment.ID, userIDs)
	if err != nil {
		return nil, export.NewStageError(s.Name(), "", fmt.Errorf("retrieve users: %w", err))
	}
	s.state.users = make(map[string]map[string]any, len(docs))
	for _, doc := range docs {
		if id, ok := doc[export.FieldID].(string); ok {
			s.state.users[id] = doc
		}
	}
	if !req.IncludeUserMetaData {
		return ds, nil
	}

	if err := s.attachConsent(ctx, userIDs); err != nil {
		return nil, export.NewStageError(s.Name(), "", err)
	}

	objects := make(map[string]map[string]any, len(s.state.users))
	for id, doc := range s.state.users {
		obj, err := s.process(doc)
		if err != nil {
			return nil, export.NewStageError(s.Name(), "", fmt.Errorf("user %s: %w", id, err))
		}
		objects[id] = obj
	}

	out := make(export.Dataset, len(ds))
	for category, records := range ds {
		next := make([]export.Record, 0, len(records))
		for _, r := range records {
			obj, ok := objects[r.UserID]
			if !ok {
				next = append(next, r)
				continue
			}
			fields := maps.Clone(r.Fields)
			fields[export.FieldUser] = export.CloneMap(obj)
			next = append(next, r.WithFields(fields))
		}
		out[category] = next
	}
	return out, nil
}

// attachConsent adds the latest consent and e-consent logs to each user
// document under "consent" and "econsent".
func (s *userMetadata) attachConsent(ctx context.Context, userIDs []string) error {
	if s.opts.Consents == nil {
		return nil
	}
	type source struct {
		key      string
		form     *export.ConsentForm
		retrieve func(context.Context, string, []string) ([]map[string]any, error)
	}
	sources := []source{
		{"consent", s.opts.Deployment.Consent, s.opts.Consents.RetrieveConsentLogs},
		{"econsent", s.opts.Deployment.EConsent, s.opts.Consents.RetrieveEConsentLogs},
	}
	for _, src := range sources {
		if src.form == nil {
			continue
		}
		logs, err := src.retrieve(ctx, src.form.ID, userIDs)
		if err != nil {
			return fmt.Errorf("retrieve %s logs: %w", src.key, err)
		}
		for _, log := range latestPerUser(logs) {
			uid, _ := log[export.FieldUserID].(string)
			if doc, ok := s.state.users[uid]; ok {
				doc[src.key] = log
			}
		}
	}
	return nil
}

func latestPerUser(logs []map[string]any) map[string]map[string]any {
	latest := make(map[string]map[string]any)
	for _, log := range logs {
		uid, _ := log[export.FieldUserID].(string)
		if uid == "" {
			continue
		}
		prev, ok := latest[uid]
		if !ok {
			latest[uid] = log
			continue
		}
		pt, _ := export.TimeValue(prev[export.FieldCreateDateTime])
		lt, _ := export.TimeValue(log[export.FieldCreateDateTime])
		if lt.After(pt) {
			latest[uid] = log
		}
	}
	return latest
}

// process runs the exclusion, de-identification and null stripping stages
// over the user object, rooted at "user".
func (s *userMetadata) process(doc map[string]any) (map[string]any, error) {
	wrapped := map[string]any{export.FieldUser: export.CloneMap(doc)}
	for _, fn := range s.post {
		next, err := fn("", wrapped)
		if err != nil {
			return nil, err
		}
		wrapped = next
	}
	obj, _ := wrapped[export.FieldUser].(map[string]any)
	if obj == nil {
		obj = map[string]any{}
	}
	return obj, nil
}

// localization replaces localizable keys with the owner's localized strings.
type localization struct {
	opts  Options
	state *runState
}

func (s *localization) Name() string { return "localize" }

func (s *localization) Apply(ctx context.Context, ds export.Dataset) (export.Dataset, error) {
	if !s.opts.Request.Translate {
		return ds, nil
	}
	out := make(export.Dataset, len(ds))
	for _, category := range ds.Categories() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records := make([]export.Record, 0, len(ds[category]))
		for _, r := range ds[category] {
			lang := s.state.language(r.UserID)
			fields, err := rewrite(r.Fields, nil, func(path []string, v any) (any, bool, error) {
				str, ok := v.(string)
				if !ok || isIdentityPath(path) {
					return nil, false, nil
				}
				if localized, ok := s.localize(lang, str); ok {
					return localized, true, nil
				}
				return nil, false, nil
			})
			if err != nil {
				return nil, export.NewStageError(s.Name(), category, err)
			}
			m, err := asMap(fields)
			if err != nil {
				return nil, export.NewStageError(s.Name(), category, err)
			}
			records = append(records, r.WithFields(m))
		}
		out[category] = records
	}
	return out, nil
}

// localize tries the user language, then the deployment default language.
// Deployment localizations win over the global bundle.
func (s *localization) localize(lang, key string) (string, bool) {
	d := s.opts.Deployment
	for _, l := range []string{lang, d.Language} {
		if l == "" {
			continue
		}
		if v, ok := d.Localizations[l][key]; ok {
			return v, true
		}
		if s.opts.Localizer != nil {
			if v, ok := s.opts.Localizer.Localize(l, key); ok {
				return v, true
			}
		}
	}
	return "", false
}

func isIdentityPath(path []string) bool {
	if len(path) == 0 {
		return false
	}
	_, ok := identityFields[path[len(path)-1]]
	return ok
}

// minimalFields survive any include list.
var minimalFields = []string{export.FieldModuleID, export.FieldUserID, export.FieldCreateDateTime}

// inclusion keeps only the included paths. It computes the excluded paths
// first and then removes exactly those from the record.
type inclusion struct {
	paths *PathSet
}

func newInclusion(req export.Request) *inclusion {
	if len(req.IncludeFields) == 0 {
		return &inclusion{}
	}
	exprs := append(slices.Clone(req.IncludeFields), minimalFields...)
	if req.IncludeUserMetaData && !selectsUser(req.IncludeFields) {
		exprs = append(exprs, export.FieldUser)
	}
	return &inclusion{paths: NewPathSet(exprs)}
}

// selectsUser reports whether any expression names part of the user object,
// either record-rooted or category-rooted.
func selectsUser(exprs []string) bool {
	for _, expr := range exprs {
		p := ParsePath(expr)
		if len(p) > 0 && p[0] == export.FieldUser || len(p) > 1 && p[1] == export.FieldUser {
			return true
		}
	}
	return false
}

func (s *inclusion) Name() string { return "include" }

func (s *inclusion) Apply(ctx context.Context, ds export.Dataset) (export.Dataset, error) {
	if s.paths.Empty() {
		return ds, nil
	}
	return mapRecords(ctx, ds, s.Name(), false, s.apply)
}

func (s *inclusion) apply(category string, fields map[string]any) (map[string]any, error) {
	patterns := s.paths.ForCategory(category)
	excluded := make(map[string]struct{})
	collectExcluded(fields, nil, patterns, excluded)
	if len(excluded) == 0 {
		return fields, nil
	}
	return asMap(prune(fields, nil, func(path []string) bool {
		_, ok := excluded[strings.Join(path, ".")]
		return ok
	}))
}

// collectExcluded records every path under v that no pattern includes.
// A node selected by a pattern keeps its whole subtree; a node above a
// selected node is kept and descended into.
func collectExcluded(v any, path []string, patterns []Path, excluded map[string]struct{}) {
	visit := func(cp []string, child any) {
		var rel relation
		for _, p := range patterns {
			rel = rel.or(relate(p, cp))
		}
		switch {
		case rel.exact || rel.descendant:
		case rel.ancestor:
			collectExcluded(child, cp, patterns, excluded)
		default:
			excluded[strings.Join(cp, ".")] = struct{}{}
		}
	}
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			visit(childPath(path, k), child)
		}
	case []any:
		for i, child := range t {
			visit(childPath(path, fmt.Sprint(i)), child)
		}
	}
}

// exclusion removes fields matching any exclude expression.
type exclusion struct {
	paths *PathSet
}

func newExclusion(req export.Request) *exclusion {
	return &exclusion{paths: NewPathSet(req.ExcludeFields)}
}

func (s *exclusion) apply(category string, fields map[string]any) (map[string]any, error) {
	if s.paths.Empty() {
		return fields, nil
	}
	patterns := s.paths.ForCategory(category)
	return asMap(prune(fields, nil, func(path []string) bool {
		return matchesAny(patterns, path)
	}))
}

// deidentification nulls the remove list and hashes the hash list. It is
// the identity when de-identification is disabled.
type deidentification struct {
	enabled bool
	remove  *PathSet
	hash    *PathSet
	hasher  *Hasher
}

func newDeidentification(req export.Request, hasher *Hasher) *deidentification {
	return &deidentification{
		enabled: req.Deidentified,
		remove:  NewPathSet(req.DeidentifyRemoveFields),
		hash:    NewPathSet(req.DeidentifyHashFields),
		hasher:  hasher,
	}
}

func (s *deidentification) apply(category string, fields map[string]any) (map[string]any, error) {
	if !s.enabled || (s.remove.Empty() && s.hash.Empty()) {
		return fields, nil
	}
	remove := s.remove.ForCategory(category)
	hash := s.hash.ForCategory(category)
	out, err := rewrite(fields, nil, func(path []string, v any) (any, bool, error) {
		if matchesAny(remove, path) {
			return nil, true, nil
		}
		if v != nil && matchesAny(hash, path) {
			digest, err := s.hasher.HashValue(v)
			if err != nil {
				return nil, false, err
			}
			return digest, true, nil
		}
		return nil, false, nil
	})
	if err != nil {
		return nil, err
	}
	return asMap(out)
}

// nullStrip drops null and empty values recursively when null fields are
// not wanted.
type nullStrip struct {
	enabled bool
}

func newNullStrip(req export.Request) *nullStrip {
	return &nullStrip{enabled: !req.IncludeNullFields}
}

func (s *nullStrip) apply(_ string, fields map[string]any) (map[string]any, error) {
	if !s.enabled {
		return fields, nil
	}
	out, _ := stripEmpty(fields)
	m, _ := out.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// stripEmpty returns the value without empty descendants and whether the
// value itself is empty.
func stripEmpty(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case string:
		return t, t == ""
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if stripped, empty := stripEmpty(child); !empty {
				out[k] = stripped
			}
		}
		return out, len(out) == 0
	case []any:
		out := make([]any, 0, len(t))
		for _, child := range t {
			if stripped, empty := stripEmpty(child); !empty {
				out = append(out, stripped)
			}
		}
		return out, len(out) == 0
	default:
		return v, false
	}
}

// shortCodeTranslation replaces keys and scalar string values that have a
// short code.
type shortCodeTranslation struct {
	opts Options
}

func (s *shortCodeTranslation) Name() string { return "short_codes" }

func (s *shortCodeTranslation) Apply(ctx context.Context, ds export.Dataset) (export.Dataset, error) {
	if !s.opts.Request.TranslationShortCodes || s.opts.ShortCodes == nil {
		return ds, nil
	}
	out := make(export.Dataset, len(ds))
	for _, category := range ds.Categories() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records := make([]export.Record, 0, len(ds[category]))
		for _, r := range ds[category] {
			module := r.ModuleID
			if module == "" {
				module = category
			}
			fields, _ := s.translate(module, r.Fields, "").(map[string]any)
			records = append(records, r.WithFields(fields))
		}
		out[category] = records
	}
	return out, nil
}

func (s *shortCodeTranslation) translate(module string, v any, key string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			nk := k
			if _, identity := identityFields[k]; !identity {
				if code, ok := s.opts.ShortCodes.Lookup(module, k); ok {
					nk = code
				}
			}
			out[nk] = s.translate(module, child, k)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = s.translate(module, child, key)
		}
		return out
	case string:
		if _, identity := identityFields[key]; identity {
			return t
		}
		if code, ok := s.opts.ShortCodes.Lookup(module, t); ok {
			return code
		}
		return t
	default:
		return v
	}
}

// flattening collapses nested values into dotted keys when a flat
// structure is requested.
type flattening struct {
	enabled bool
}

func newFlattening(req export.Request) *flattening {
	return &flattening{enabled: req.UseFlatStructure}
}

func (s *flattening) apply(_ string, fields map[string]any) (map[string]any, error) {
	if !s.enabled {
		return fields, nil
	}
	return Flatten(fields), nil
}
