package fetch

import (
	"context"
	"log/slog"

	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/export/revere"
)

// RevereTest fetches Revere word-recall tests and renders a scoring table
// side file per test. Trial audio stays an object reference so the binary
// resolver handles it like any other binary field.
type RevereTest struct {
	*Generic
	files []export.File
}

// NewRevereTest creates a Revere test fetcher.
func NewRevereTest() *RevereTest {
	return &RevereTest{Generic: NewGeneric(ModuleRevereTest)}
}

// Fetch implements Fetcher.
func (r *RevereTest) Fetch(ctx context.Context, run *Run, moduleName string) (export.Dataset, error) {
	prims, err := r.primitives(ctx, run, moduleName)
	if err != nil {
		return nil, err
	}
	homophones := run.Homophones
	if homophones == nil {
		homophones = revere.DefaultHomophones
	}

	records := make([]export.Record, 0, len(prims))
	for _, p := range prims {
		records = append(records, p.record(moduleName))

		test, err := revere.ParseTest(p.doc)
		if err != nil {
			slog.Default().With("component", "export.fetch").Warn("skipping revere scoring table",
				"record_id", p.doc[export.FieldID], "error", err)
			continue
		}
		f, err := revere.SideFile(test, homophones)
		if err != nil {
			return nil, err
		}
		r.files = append(r.files, f)
	}
	return export.Dataset{moduleName: records}, nil
}

// SideFiles implements SideFileProducer.
func (r *RevereTest) SideFiles() []export.File {
	return r.files
}
