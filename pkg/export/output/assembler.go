package output

import (
	"path"
	"strings"

	"cohortline/exportd/pkg/export"
)

// CombinedFileName is the base name of the one file FLAT+SINGLE produces.
const CombinedFileName = "export"

// Column names added to CSV rows that combine several categories or view keys.
const (
	ColumnViewKey  = "viewKey"
	ColumnCategory = "category"
)

// Assembler lays a tree out as files according to the request's layer,
// quantity and format.
type Assembler struct {
	req  export.Request
	json *JSONRenderer
	csv  *CSVRenderer
}

// NewAssembler creates an assembler for req.
func NewAssembler(req export.Request) *Assembler {
	return &Assembler{
		req:  req,
		json: NewJSONRenderer(false),
		csv:  NewCSVRenderer(true),
	}
}

// unit is one output file before rendering.
type unit struct {
	path string
	// keys and categories covered by the unit, each sorted.
	keys       []string
	categories map[string][]string
}

// Assemble renders every output unit for every requested format. Files are
// returned in a deterministic order.
func (a *Assembler) Assemble(tree Tree) ([]export.File, error) {
	units := a.units(tree)
	var files []export.File
	for _, format := range a.req.Format.Renderings() {
		for _, u := range units {
			f, err := a.render(tree, u, format)
			if err != nil {
				return nil, err
			}
			files = append(files, f)
		}
	}
	return files, nil
}

// SingleFile renders the one in-memory file the request collapses to. It
// rejects requests that could produce more than one (view, format) unit.
func (a *Assembler) SingleFile(tree Tree, deploymentCount int) (export.File, error) {
	if !a.req.CollapsesToSingleUnit(deploymentCount) {
		return export.File{}, export.NewValidationError("singleFileResponse",
			"configuration does not collapse to a single file; use layer FLAT or view SINGLE with quantity SINGLE, one format, one deployment and no embedded binaries")
	}
	if len(tree) == 0 && a.req.Layer == export.LayerNested {
		tree = Tree{SingleViewKey: {}}
	}
	files, err := a.Assemble(tree)
	if err != nil {
		return export.File{}, err
	}
	if len(files) != 1 {
		return export.File{}, export.NewValidationError("singleFileResponse", "configuration produced more than one file")
	}
	return files[0], nil
}

func (a *Assembler) units(tree Tree) []unit {
	keys := tree.Keys()
	all := make(map[string][]string, len(keys))
	for _, k := range keys {
		all[k] = tree.Categories(k)
	}

	var units []unit
	switch a.req.Layer {
	case export.LayerFlat:
		if a.req.Quantity == export.QuantitySingle {
			return []unit{{path: CombinedFileName, keys: keys, categories: all}}
		}
		for _, k := range keys {
			units = append(units, unit{
				path:       SanitizeName(k),
				keys:       []string{k},
				categories: map[string][]string{k: all[k]},
			})
		}
	case export.LayerNested:
		for _, k := range keys {
			dir := SanitizeName(k)
			if a.req.Quantity == export.QuantitySingle {
				units = append(units, unit{
					path:       path.Join(dir, dir),
					keys:       []string{k},
					categories: map[string][]string{k: all[k]},
				})
				continue
			}
			for _, c := range all[k] {
				units = append(units, unit{
					path:       path.Join(dir, SanitizeName(c)),
					keys:       []string{k},
					categories: map[string][]string{k: {c}},
				})
			}
		}
	}
	return units
}

func (a *Assembler) render(tree Tree, u unit, format export.Format) (export.File, error) {
	var (
		name    string
		content []byte
		err     error
		count   int
	)
	switch format {
	case export.FormatCSV:
		name = u.path + ".csv"
		rows := a.rows(tree, u)
		count = len(rows)
		content, err = a.csv.Bytes(rows)
	case export.FormatJSON:
		name = u.path + ".json"
		v := a.payload(tree, u)
		count = countUnit(tree, u)
		content, err = a.json.Bytes(v)
	default:
		err = export.NewValidationError("format", "unsupported rendering "+string(format))
	}
	if err != nil {
		return export.File{}, export.NewRenderError(format, name, count, err)
	}
	return export.File{Path: name, Content: content}, nil
}

// payload shapes a unit as JSON. A per-category file is an array, a
// per-key file is keyed by category and the combined file is keyed by view
// key then category.
func (a *Assembler) payload(tree Tree, u unit) any {
	switch {
	case a.perCategory():
		k := u.keys[0]
		return fieldsOf(tree[k][u.categories[k][0]])
	case a.combined():
		out := make(map[string]any, len(u.keys))
		for _, k := range u.keys {
			out[k] = tree.payload(k)
		}
		return out
	default:
		return tree.payload(u.keys[0])
	}
}

func (a *Assembler) perCategory() bool {
	return a.req.Layer == export.LayerNested && a.req.Quantity == export.QuantityMultiple
}

func (a *Assembler) combined() bool {
	return a.req.Layer == export.LayerFlat && a.req.Quantity == export.QuantitySingle
}

// rows flattens a unit into CSV rows. Rows of files that span several
// categories carry a category column; rows of the combined file also carry
// the view key.
func (a *Assembler) rows(tree Tree, u unit) []map[string]any {
	tagKey := a.combined()
	tagCategory := !a.perCategory()
	var rows []map[string]any
	for _, k := range u.keys {
		for _, c := range u.categories[k] {
			for _, r := range tree[k][c] {
				if !tagKey && !tagCategory {
					rows = append(rows, r.Fields)
					continue
				}
				row := make(map[string]any, len(r.Fields)+2)
				if tagKey {
					row[ColumnViewKey] = k
				}
				if tagCategory {
					row[ColumnCategory] = c
				}
				for f, v := range r.Fields {
					row[f] = v
				}
				rows = append(rows, row)
			}
		}
	}
	return rows
}

func countUnit(tree Tree, u unit) int {
	n := 0
	for _, k := range u.keys {
		for _, c := range u.categories[k] {
			n += len(tree[k][c])
		}
	}
	return n
}

// SanitizeName makes a view key or category safe as a path segment.
func SanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// WithPrefix returns files with dir prepended to every path.
func WithPrefix(files []export.File, dir string) []export.File {
	if dir == "" {
		return files
	}
	out := make([]export.File, len(files))
	for i, f := range files {
		out[i] = export.File{Path: path.Join(SanitizeName(dir), f.Path), Content: f.Content}
	}
	return out
}
