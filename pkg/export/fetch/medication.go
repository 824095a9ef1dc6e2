package fetch

import (
	"context"

	"cohortline/exportd/pkg/export"
)

const (
	fieldChangeHistory = "changeHistory"
	fieldMedicationID  = "medicationId"
	fieldChangeTime    = "changeDateTime"
)

// Medication fetches current medication schedules and emits every change
// history entry as a record of its own category.
type Medication struct {
	*Generic
}

// NewMedication creates a medication fetcher.
func NewMedication() *Medication {
	return &Medication{Generic: NewGeneric(ModuleMedication)}
}

// Fetch implements Fetcher.
func (m *Medication) Fetch(ctx context.Context, run *Run, moduleName string) (export.Dataset, error) {
	prims, err := m.primitives(ctx, run, moduleName)
	if err != nil {
		return nil, err
	}

	out := export.Dataset{
		moduleName:                    make([]export.Record, 0, len(prims)),
		ModuleMedicationChangeHistory: {},
	}
	for _, p := range prims {
		history, _ := p.doc[fieldChangeHistory].([]any)
		delete(p.doc, fieldChangeHistory)
		rec := p.record(moduleName)
		out[moduleName] = append(out[moduleName], rec)

		for _, entry := range history {
			change, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			out[ModuleMedicationChangeHistory] = append(out[ModuleMedicationChangeHistory], changeRecord(rec, change))
		}
	}
	return out, nil
}

func changeRecord(med export.Record, change map[string]any) export.Record {
	fields := export.CloneMap(change)
	fields[fieldMedicationID] = med.ID()
	fields[export.FieldUserID] = med.UserID
	fields[export.FieldModuleID] = ModuleMedicationChangeHistory
	if dep, ok := med.Fields[export.FieldDeploymentID]; ok {
		fields[export.FieldDeploymentID] = dep
	}

	start := med.StartTime
	if t, ok := export.TimeValue(change[fieldChangeTime]); ok {
		start = t
	}
	return export.Record{
		Category:       ModuleMedicationChangeHistory,
		ModuleID:       ModuleMedicationChangeHistory,
		ModuleConfigID: med.ModuleConfigID,
		ConfigVersion:  med.ConfigVersion,
		UserID:         med.UserID,
		StartTime:      start,
		Fields:         fields,
	}
}
