package transform

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Wildcard matches any key, list index or category in a path expression.
const Wildcard = "*"

// Path is a parsed dotted path expression such as "answers.*.value".
type Path []string

// ParsePath splits a dotted expression into segments. Empty segments are
// dropped.
func ParsePath(expr string) Path {
	var p Path
	for _, seg := range strings.Split(expr, ".") {
		if seg = strings.TrimSpace(seg); seg != "" {
			p = append(p, seg)
		}
	}
	return p
}

// String returns the dotted form of the path.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// PathSet is a compiled list of path expressions. Expressions may be rooted
// at the category ("Weight.value", "*.value") or at the record ("value").
type PathSet struct {
	paths []Path
}

// NewPathSet compiles expressions.
func NewPathSet(exprs []string) *PathSet {
	ps := &PathSet{}
	for _, expr := range exprs {
		if p := ParsePath(expr); len(p) > 0 {
			ps.paths = append(ps.paths, p)
		}
	}
	return ps
}

// Empty reports whether the set holds no expressions.
func (ps *PathSet) Empty() bool {
	return ps == nil || len(ps.paths) == 0
}

// ForCategory returns the record-rooted expressions that apply to records of
// category. A category-rooted expression contributes its remainder in
// addition to itself.
func (ps *PathSet) ForCategory(category string) []Path {
	if ps.Empty() {
		return nil
	}
	out := make([]Path, 0, len(ps.paths))
	for _, p := range ps.paths {
		out = append(out, p)
		if category != "" && len(p) > 1 && (p[0] == Wildcard || p[0] == category) {
			out = append(out, p[1:])
		}
	}
	return out
}

// relation describes how a concrete path relates to a pattern.
type relation struct {
	exact bool
	// ancestor: the concrete path lies above a node the pattern selects.
	ancestor bool
	// descendant: the concrete path lies below a node the pattern selects.
	descendant bool
}

func (r relation) or(o relation) relation {
	return relation{
		exact:      r.exact || o.exact,
		ancestor:   r.ancestor || o.ancestor,
		descendant: r.descendant || o.descendant,
	}
}

func isIndex(seg string) bool {
	_, err := strconv.Atoi(seg)
	return err == nil
}

func segmentMatches(pattern, seg string) bool {
	return pattern == Wildcard || pattern == seg
}

// relate compares a pattern with a concrete path. List indexes in the
// concrete path may be matched by "*", by the same index, or skipped so
// that "answers.value" reaches every element's value.
func relate(pattern, path []string) relation {
	switch {
	case len(pattern) == 0 && len(path) == 0:
		return relation{exact: true}
	case len(pattern) == 0:
		return relation{descendant: true}
	case len(path) == 0:
		return relation{ancestor: true}
	}

	var r relation
	if segmentMatches(pattern[0], path[0]) {
		r = r.or(relate(pattern[1:], path[1:]))
	}
	if isIndex(path[0]) {
		r = r.or(relate(pattern, path[1:]))
	}
	return r
}

// matchesAny reports whether any pattern selects exactly path.
func matchesAny(patterns []Path, path []string) bool {
	for _, p := range patterns {
		if relate(p, path).exact {
			return true
		}
	}
	return false
}

func childPath(path []string, seg string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

// prune returns a copy of v without the nodes for which drop returns true.
func prune(v any, path []string, drop func(path []string) bool) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			cp := childPath(path, k)
			if drop(cp) {
				continue
			}
			out[k] = prune(child, cp, drop)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for i, child := range t {
			cp := childPath(path, strconv.Itoa(i))
			if drop(cp) {
				continue
			}
			out = append(out, prune(child, cp, drop))
		}
		return out
	default:
		return v
	}
}

// rewrite returns a copy of v where every node for which fn reports a
// replacement is replaced. Replaced nodes are not descended into.
func rewrite(v any, path []string, fn func(path []string, v any) (any, bool, error)) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			cp := childPath(path, k)
			repl, ok, err := fn(cp, child)
			if err != nil {
				return nil, err
			}
			if ok {
				out[k] = repl
				continue
			}
			if out[k], err = rewrite(child, cp, fn); err != nil {
				return nil, err
			}
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			cp := childPath(path, strconv.Itoa(i))
			repl, ok, err := fn(cp, child)
			if err != nil {
				return nil, err
			}
			if ok {
				out[i] = repl
				continue
			}
			if out[i], err = rewrite(child, cp, fn); err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return v, nil
	}
}

// Flatten collapses nested maps and lists into dotted keys. List elements
// are keyed by index. Empty containers are kept as leaf values.
func Flatten(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	flattenInto(out, "", fields)
	return out
}

func flattenInto(out map[string]any, prefix string, v any) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 && prefix != "" {
			out[prefix] = t
			return
		}
		for _, k := range slices.Sorted(maps.Keys(t)) {
			flattenInto(out, join(k), t[k])
		}
	case []any:
		if len(t) == 0 {
			out[prefix] = t
			return
		}
		for i, child := range t {
			flattenInto(out, join(strconv.Itoa(i)), child)
		}
	default:
		if prefix == "" {
			return
		}
		out[prefix] = v
	}
}

// FlattenedKeys returns the keys Flatten would produce, in depth-first
// order with map keys sorted.
func FlattenedKeys(fields map[string]any) []string {
	var keys []string
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		join := func(k string) string {
			if prefix == "" {
				return k
			}
			return prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]any:
			if len(t) == 0 && prefix != "" {
				keys = append(keys, prefix)
				return
			}
			for _, k := range slices.Sorted(maps.Keys(t)) {
				walk(join(k), t[k])
			}
		case []any:
			if len(t) == 0 {
				keys = append(keys, prefix)
				return
			}
			for i, child := range t {
				walk(join(strconv.Itoa(i)), child)
			}
		default:
			if prefix != "" {
				keys = append(keys, prefix)
			}
		}
	}
	walk("", fields)
	return keys
}

// asMap asserts that a pruned or rewritten record root is still a map.
func asMap(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record root became %T", v)
	}
	return m, nil
}
