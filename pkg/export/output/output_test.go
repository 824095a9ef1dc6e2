package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"cohortline/exportd/pkg/export"
)

func rec(category, userID string, start time.Time, fields map[string]any) export.Record {
	f := map[string]any{"userId": userID}
	for k, v := range fields {
		f[k] = v
	}
	return export.Record{Category: category, UserID: userID, StartTime: start, Fields: f}
}

func day(d, h int) time.Time {
	return time.Date(2024, 3, d, h, 0, 0, 0, time.UTC)
}

func sampleDataset() export.Dataset {
	return export.Dataset{
		"Weight": {
			rec("Weight", "u1", day(1, 8), map[string]any{"value": 70.0}),
			rec("Weight", "u1", day(1, 20), map[string]any{"value": 71.0}),
			rec("Weight", "u2", day(2, 8), map[string]any{"value": 80.0}),
		},
		"Steps": {
			rec("Steps", "u1", day(2, 9), map[string]any{"steps": 1000.0}),
		},
		"Empty": {},
	}
}

func TestHeader_FirstSeenUnion(t *testing.T) {
	rows := []map[string]any{
		{"b": 1, "a": 2},
		{"c": 3, "a": 4},
		{"d": map[string]any{"x": 1}},
	}
	want := []string{"a", "b", "c", "d.x"}
	if got := Header(rows); !slices.Equal(got, want) {
		t.Errorf("Header() = %v, want %v", got, want)
	}
}

func TestCSV_MissingKeysRenderEmpty(t *testing.T) {
	rows := []map[string]any{
		{"a": "1", "b": true},
		{"c": 2.5},
	}
	data, err := NewCSVRenderer(true).Bytes(rows)
	if err != nil {
		t.Fatalf("Bytes() failed: %v", err)
	}
	want := "a,b,c\n1,true,\n,,2.5\n"
	if string(data) != want {
		t.Errorf("csv =\n%s\nwant\n%s", data, want)
	}
}

func TestJSON_SlashesUnescaped(t *testing.T) {
	data, err := NewJSONRenderer(false).Bytes(map[string]any{"url": "https://x/y?a=1&b=<2>"})
	if err != nil {
		t.Fatalf("Bytes() failed: %v", err)
	}
	if !strings.Contains(string(data), "https://x/y?a=1&b=<2>") {
		t.Errorf("json = %s, want unescaped url", data)
	}
}

func TestBuildTree_Views(t *testing.T) {
	ds := sampleDataset()
	tests := []struct {
		view export.View
		keys []string
	}{
		{export.ViewUser, []string{"u1", "u2"}},
		{export.ViewDay, []string{"2024-03-01", "2024-03-02"}},
		{export.ViewModuleConfig, []string{"Empty", "Steps", "Weight"}},
		{export.ViewSingle, []string{SingleViewKey}},
	}
	for _, tt := range tests {
		t.Run(string(tt.view), func(t *testing.T) {
			tree := BuildTree(tt.view, ds)
			if got := tree.Keys(); !slices.Equal(got, tt.keys) {
				t.Errorf("Keys() = %v, want %v", got, tt.keys)
			}
			if tree.Count() != ds.Count() {
				t.Errorf("Count() = %d, want %d", tree.Count(), ds.Count())
			}
		})
	}
}

func TestBuildTreeKeyed_MapsOnlyUserKeys(t *testing.T) {
	ds := sampleDataset()
	ds["Steps"] = append(ds["Steps"], rec("Steps", "", day(3, 9), nil))
	hashed := func(id string) string { return "hash-" + id }

	tree := BuildTreeKeyed(export.ViewUser, ds, hashed)
	if got, want := tree.Keys(), []string{"", "hash-u1", "hash-u2"}; !slices.Equal(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if got := BuildTreeKeyed(export.ViewDay, ds, hashed).Keys(); slices.ContainsFunc(got, func(k string) bool {
		return strings.HasPrefix(k, "hash-")
	}) {
		t.Errorf("DAY keys = %v, should not be mapped", got)
	}
}

func TestAssemble_FlatSingleAlwaysOneFilePerFormat(t *testing.T) {
	for _, view := range []export.View{export.ViewUser, export.ViewDay, export.ViewModuleConfig, export.ViewSingle} {
		req := export.Request{View: view, Layer: export.LayerFlat, Quantity: export.QuantitySingle, Format: export.FormatJSONCSV}
		files, err := NewAssembler(req).Assemble(BuildTree(view, sampleDataset()))
		if err != nil {
			t.Fatalf("Assemble(%s) failed: %v", view, err)
		}
		var paths []string
		for _, f := range files {
			paths = append(paths, f.Path)
		}
		if !slices.Equal(paths, []string{"export.json", "export.csv"}) {
			t.Errorf("view %s produced %v", view, paths)
		}
	}
}

func TestAssemble_Layouts(t *testing.T) {
	tests := []struct {
		name     string
		layer    export.Layer
		quantity export.Quantity
		want     []string
	}{
		{"nested multiple", export.LayerNested, export.QuantityMultiple, []string{"u1/Steps.json", "u1/Weight.json", "u2/Weight.json"}},
		{"nested single", export.LayerNested, export.QuantitySingle, []string{"u1/u1.json", "u2/u2.json"}},
		{"flat multiple", export.LayerFlat, export.QuantityMultiple, []string{"u1.json", "u2.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := export.Request{View: export.ViewUser, Layer: tt.layer, Quantity: tt.quantity, Format: export.FormatJSON}
			files, err := NewAssembler(req).Assemble(BuildTree(req.View, sampleDataset()))
			if err != nil {
				t.Fatalf("Assemble() failed: %v", err)
			}
			var paths []string
			for _, f := range files {
				paths = append(paths, f.Path)
			}
			if !slices.Equal(paths, tt.want) {
				t.Errorf("paths = %v, want %v", paths, tt.want)
			}
		})
	}
}

func TestSingleFile_RejectsMultiUnitConfigurations(t *testing.T) {
	tests := []struct {
		name string
		req  export.Request
		deps int
	}{
		{"multiple quantity", export.Request{View: export.ViewUser, Layer: export.LayerFlat, Quantity: export.QuantityMultiple, Format: export.FormatJSON}, 1},
		{"two formats", export.Request{View: export.ViewUser, Layer: export.LayerFlat, Quantity: export.QuantitySingle, Format: export.FormatJSONCSV}, 1},
		{"nested per user", export.Request{View: export.ViewUser, Layer: export.LayerNested, Quantity: export.QuantitySingle, Format: export.FormatJSON}, 1},
		{"embedded binaries", export.Request{View: export.ViewUser, Layer: export.LayerFlat, Quantity: export.QuantitySingle, Format: export.FormatJSON, Binary: export.BinaryEmbed}, 1},
		{"two deployments", export.Request{View: export.ViewUser, Layer: export.LayerFlat, Quantity: export.QuantitySingle, Format: export.FormatJSON}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAssembler(tt.req).SingleFile(BuildTree(tt.req.View, sampleDataset()), tt.deps)
			var ve *export.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("SingleFile() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestSingleFile_UserAndDayShapes(t *testing.T) {
	ds := export.Dataset{"Weight": {
		rec("Weight", "u1", day(1, 8), nil),
		rec("Weight", "u1", day(1, 9), nil),
		rec("Weight", "u1", day(2, 8), nil),
	}}

	user := export.Request{View: export.ViewUser, Layer: export.LayerFlat, Quantity: export.QuantitySingle, Format: export.FormatJSON}
	f, err := NewAssembler(user).SingleFile(BuildTree(user.View, ds), 1)
	if err != nil {
		t.Fatalf("SingleFile(USER) failed: %v", err)
	}
	var byUser map[string]map[string][]any
	if err := json.Unmarshal(f.Content, &byUser); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(byUser) != 1 || len(byUser["u1"]["Weight"]) != 3 {
		t.Errorf("USER payload = %s", f.Content)
	}

	dayReq := user
	dayReq.View = export.ViewDay
	f, err = NewAssembler(dayReq).SingleFile(BuildTree(dayReq.View, ds), 1)
	if err != nil {
		t.Fatalf("SingleFile(DAY) failed: %v", err)
	}
	var byDay map[string]map[string][]any
	if err := json.Unmarshal(f.Content, &byDay); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(byDay["2024-03-01"]["Weight"]) != 2 || len(byDay["2024-03-02"]["Weight"]) != 1 {
		t.Errorf("DAY payload = %s", f.Content)
	}
}

func TestArchive_CreationOrderIndex(t *testing.T) {
	var buf bytes.Buffer
	a := NewArchive(&buf, day(1, 0))
	files := []export.File{
		{Path: "z.json", Content: []byte("{}")},
		{Path: "a/b.csv", Content: []byte("x\n")},
	}
	if err := a.AddAll(files); err != nil {
		t.Fatalf("AddAll() failed: %v", err)
	}
	if err := a.Add(files[0]); err == nil {
		t.Error("duplicate entry should fail")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if got := a.Names(); !slices.Equal(got, []string{"z.json", "a/b.csv"}) {
		t.Errorf("Names() = %v", got)
	}

	read, err := ReadArchive(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadArchive() failed: %v", err)
	}
	if len(read) != 2 || read[0].Path != "z.json" || string(read[1].Content) != "x\n" {
		t.Errorf("ReadArchive() = %+v", read)
	}
}

func TestWithPrefix(t *testing.T) {
	got := WithPrefix([]export.File{{Path: "u1.json"}}, "dep/1")
	if got[0].Path != "dep_1/u1.json" {
		t.Errorf("Path = %q", got[0].Path)
	}
}
