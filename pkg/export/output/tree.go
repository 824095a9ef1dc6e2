package output

import (
	"maps"
	"slices"
	"time"

	"cohortline/exportd/pkg/export"
)

// SingleViewKey is the constant key used by the SINGLE view.
const SingleViewKey = "data"

// unknownDay groups records without a usable timestamp under the DAY view.
const unknownDay = "unknown"

// dayLayout is the date portion used as the DAY view key.
const dayLayout = "2006-01-02"

// ViewKey derives the key a record is grouped under for view.
func ViewKey(view export.View, r export.Record) string {
	switch view {
	case export.ViewUser:
		return r.UserID
	case export.ViewDay:
		return dayOf(r)
	case export.ViewSingle:
		return SingleViewKey
	case export.ViewModuleConfig:
		return r.Category
	default:
		return r.Category
	}
}

func dayOf(r export.Record) string {
	if !r.StartTime.IsZero() {
		return r.StartTime.UTC().Format(dayLayout)
	}
	for _, field := range []string{export.FieldStartDateTime, export.FieldCreateDateTime} {
		if t, ok := export.TimeValue(r.Fields[field]); ok {
			return t.UTC().Format(dayLayout)
		}
	}
	return unknownDay
}

// Tree groups records as viewKey → category → records.
type Tree map[string]map[string][]export.Record

// BuildTree groups a dataset by view. Record order within a category is
// preserved. Empty categories are kept under MODULE_CONFIG and SINGLE views.
func BuildTree(view export.View, ds export.Dataset) Tree {
	return BuildTreeKeyed(view, ds, nil)
}

// BuildTreeKeyed is BuildTree with userKey applied to USER view keys, so a
// de-identified run can group by hashed user id. A nil userKey keeps the raw
// id.
func BuildTreeKeyed(view export.View, ds export.Dataset, userKey func(string) string) Tree {
	tree := make(Tree)
	add := func(key, category string) {
		if tree[key] == nil {
			tree[key] = make(map[string][]export.Record)
		}
		if _, ok := tree[key][category]; !ok {
			tree[key][category] = []export.Record{}
		}
	}

	if view == export.ViewSingle {
		tree[SingleViewKey] = make(map[string][]export.Record)
	}
	for _, category := range ds.Categories() {
		records := ds[category]
		if len(records) == 0 {
			switch view {
			case export.ViewSingle:
				add(SingleViewKey, category)
			case export.ViewModuleConfig:
				add(category, category)
			}
			continue
		}
		for _, r := range records {
			key := ViewKey(view, r)
			if view == export.ViewUser && userKey != nil && key != "" {
				key = userKey(key)
			}
			add(key, category)
			tree[key][category] = append(tree[key][category], r)
		}
	}
	return tree
}

// Keys returns the view keys in sorted order.
func (t Tree) Keys() []string {
	return slices.Sorted(maps.Keys(t))
}

// Categories returns the categories under key in sorted order.
func (t Tree) Categories(key string) []string {
	return slices.Sorted(maps.Keys(t[key]))
}

// Count returns the number of records in the tree.
func (t Tree) Count() int {
	n := 0
	for _, categories := range t {
		for _, records := range categories {
			n += len(records)
		}
	}
	return n
}

// payload converts one view key's categories to a JSON-ready value.
func (t Tree) payload(key string) map[string]any {
	out := make(map[string]any, len(t[key]))
	for category, records := range t[key] {
		out[category] = fieldsOf(records)
	}
	return out
}

func fieldsOf(records []export.Record) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r.Fields
	}
	return out
}

// stamp formats times for file content.
func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
