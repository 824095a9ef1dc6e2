package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type rows [][]string

func (r rows) Headers() []string { return []string{"ID", "STATUS"} }
func (r rows) Rows() [][]string  { return r }

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  OutputFormat
		want    string
		wantErr bool
	}{
		{"", "*cli.TableFormatter", false},
		{FormatTable, "*cli.TableFormatter", false},
		{FormatJSON, "*cli.JSONFormatter", false},
		{FormatText, "*cli.TextFormatter", false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			f, err := NewFormatter(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewFormatter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if got := typeName(f); got != tt.want {
					t.Errorf("NewFormatter() = %s, want %s", got, tt.want)
				}
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *TableFormatter:
		return "*cli.TableFormatter"
	case *JSONFormatter:
		return "*cli.JSONFormatter"
	case *TextFormatter:
		return "*cli.TextFormatter"
	default:
		return "unknown"
	}
}

func TestTableFormatter(t *testing.T) {
	var buf bytes.Buffer
	data := rows{{"p1", "DONE"}, {"p2", "ERROR"}}
	if err := (&TableFormatter{}).FormatTo(&buf, data); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"ID", "STATUS", "p1", "DONE", "p2", "ERROR"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := (&TableFormatter{}).FormatTo(&buf, "plain"); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if buf.String() != "plain\n" {
		t.Errorf("non-tabular fallback = %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]string{"url": "https://example.com/a?b=1&c=2"}
	if err := (&JSONFormatter{Indent: true}).FormatTo(&buf, data); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if !strings.Contains(buf.String(), "&c=2") {
		t.Errorf("HTML escaping should be off: %s", buf.String())
	}
	var decoded map[string]string
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["url"] != data["url"] {
		t.Errorf("decoded = %v", decoded)
	}
}
