package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"cohortline/exportd/pkg/export/transform"
)

// CSVRenderer renders rows as CSV. Nested values are flattened into dotted
// columns. The header is the union of all row keys in first-seen order.
type CSVRenderer struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVRenderer creates a new CSV renderer.
func NewCSVRenderer(includeHeader bool) *CSVRenderer {
	return &CSVRenderer{IncludeHeader: includeHeader}
}

// Header returns the first-seen ordered union of the flattened row keys.
func Header(rows []map[string]any) []string {
	seen := make(map[string]struct{})
	var header []string
	for _, row := range rows {
		for _, k := range transform.FlattenedKeys(row) {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			header = append(header, k)
		}
	}
	return header
}

// Render writes rows to w. A row missing a column renders an empty cell.
func (r *CSVRenderer) Render(rows []map[string]any, w io.Writer) error {
	writer := csv.NewWriter(w)

	header := Header(rows)
	if r.IncludeHeader {
		if err := writer.Write(header); err != nil {
			return err
		}
	}

	record := make([]string, len(header))
	for _, row := range rows {
		flat := transform.Flatten(row)
		for i, col := range header {
			record[i] = cell(flat[col])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// Bytes renders rows into memory.
func (r *CSVRenderer) Bytes(rows []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(rows, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case time.Time:
		return stamp(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
