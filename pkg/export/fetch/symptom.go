package fetch

import (
	"context"

	"cohortline/exportd/pkg/export"
)

// NotSelected marks a configured symptom the user did not report.
const NotSelected = "not selected"

const (
	fieldComplexValues = "complexValues"
	fieldSymptomName   = "name"
	fieldSeverity      = "severity"

	configComplexSymptoms = "complexSymptoms"
)

// Symptom fetches symptom reports and flattens their severities into one
// field per symptom name.
type Symptom struct {
	*Generic
}

// NewSymptom creates a symptom fetcher.
func NewSymptom() *Symptom {
	return &Symptom{Generic: NewGeneric(ModuleSymptom)}
}

// Fetch implements Fetcher.
func (s *Symptom) Fetch(ctx context.Context, run *Run, moduleName string) (export.Dataset, error) {
	prims, err := s.primitives(ctx, run, moduleName)
	if err != nil {
		return nil, err
	}
	records := make([]export.Record, 0, len(prims))
	for _, p := range prims {
		flattenSymptoms(p.doc, configuredSymptoms(p.config))
		records = append(records, p.record(moduleName))
	}
	return export.Dataset{moduleName: records}, nil
}

// flattenSymptoms replaces the severity sub-records with one field per
// symptom and back-fills configured symptoms that were not reported.
func flattenSymptoms(doc map[string]any, configured []string) {
	values, _ := doc[fieldComplexValues].([]any)
	delete(doc, fieldComplexValues)
	for _, v := range values {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m[fieldSymptomName].(string)
		if name == "" {
			continue
		}
		doc[name] = m[fieldSeverity]
	}
	for _, name := range configured {
		if _, ok := doc[name]; !ok {
			doc[name] = NotSelected
		}
	}
}

func configuredSymptoms(mc *export.ModuleConfig) []string {
	if mc == nil {
		return nil
	}
	items, _ := mc.Body[configComplexSymptoms].([]any)
	names := make([]string, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			names = append(names, t)
		case map[string]any:
			if name, ok := t[fieldSymptomName].(string); ok && name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
