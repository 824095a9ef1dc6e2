package export

import (
	"maps"
	"slices"
	"time"
)

// Well-known record field names.
const (
	FieldID                  = "id"
	FieldUserID              = "userId"
	FieldModuleID            = "moduleId"
	FieldModuleConfigID      = "moduleConfigId"
	FieldModuleConfigVersion = "moduleConfigVersion"
	FieldDeploymentID        = "deploymentId"
	FieldStartDateTime       = "startDateTime"
	FieldEndDateTime         = "endDateTime"
	FieldCreateDateTime      = "createDateTime"
	FieldUser                = "user"
)

// Record is one clinical submission ready for transformation. Stages never
// mutate a Record in place; they derive a new one with WithFields.
type Record struct {
	Category       string
	ModuleID       string
	ModuleConfigID string
	ConfigVersion  *int
	UserID         string
	StartTime      time.Time
	Fields         map[string]any
}

// WithFields returns a copy of the record carrying the given field map.
func (r Record) WithFields(fields map[string]any) Record {
	r.Fields = fields
	return r
}

// CloneFields returns a deep copy of the record's fields.
func (r Record) CloneFields() map[string]any {
	return CloneMap(r.Fields)
}

// ID returns the record id field, if any.
func (r Record) ID() string {
	s, _ := r.Fields[FieldID].(string)
	return s
}

// Dataset maps category name to its records.
type Dataset map[string][]Record

// Categories returns the category names in sorted order.
func (d Dataset) Categories() []string {
	return slices.Sorted(maps.Keys(d))
}

// Count returns the total number of records across categories.
func (d Dataset) Count() int {
	n := 0
	for _, records := range d {
		n += len(records)
	}
	return n
}

// Merge adds the records of other into d. Categories present in other but
// empty are still created in d.
func (d Dataset) Merge(other Dataset) {
	for category, records := range other {
		if _, ok := d[category]; !ok {
			d[category] = []Record{}
		}
		d[category] = append(d[category], records...)
	}
}

// UserIDs returns every distinct user id across the dataset in first-seen
// order of sorted categories.
func (d Dataset) UserIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, category := range d.Categories() {
		for _, r := range d[category] {
			if r.UserID == "" {
				continue
			}
			if _, ok := seen[r.UserID]; ok {
				continue
			}
			seen[r.UserID] = struct{}{}
			ids = append(ids, r.UserID)
		}
	}
	return ids
}

// CloneMap deep-copies a JSON-like map.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies a JSON-like value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(t)
	case []map[string]any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = CloneMap(item)
		}
		return out
	default:
		return v
	}
}

// TimeValue reads a timestamp from a document value. It accepts time.Time
// and RFC 3339 strings.
func TimeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	default:
		return time.Time{}, false
	}
}

// IntValue reads an integer from a document value decoded from JSON or BSON.
func IntValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// FloatValue reads a number from a document value decoded from JSON or BSON.
func FloatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
