package output

import (
	"bytes"
	"encoding/json"
	"io"
)

// JSONRenderer renders payloads as JSON. HTML escaping is disabled so
// slashes, ampersands and angle brackets appear as-is.
type JSONRenderer struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONRenderer creates a new JSON renderer.
func NewJSONRenderer(pretty bool) *JSONRenderer {
	return &JSONRenderer{Pretty: pretty}
}

// Render writes v to w.
func (r *JSONRenderer) Render(v any, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if r.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// Bytes renders v into memory. The trailing newline the encoder adds is
// trimmed.
func (r *JSONRenderer) Bytes(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(v, &buf); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
