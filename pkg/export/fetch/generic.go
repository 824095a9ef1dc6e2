package fetch

import (
	"context"
	"fmt"
	"math"
	"strings"

	"cohortline/exportd/pkg/export"
)

// Module ids with specialised fetchers.
const (
	ModuleQuestionnaire           = "Questionnaire"
	ModuleSymptom                 = "Symptom"
	ModuleMedication              = "Medication"
	ModuleMedicationChangeHistory = "MedicationChangeHistory"
	ModuleRevereTest              = "RevereTest"
	ModuleConsent                 = "Consent"
	ModuleEConsent                = "EConsent"
)

// rangedModules hold an end time and match a date range on either end.
var rangedModules = map[string]struct{}{
	"Appointment": {},
	"Calendar":    {},
}

// Config body keys the generic fetcher understands.
const (
	configUnit       = "unit"
	configThresholds = "thresholds"
)

// Primitive field names the generic fetcher reads or writes.
const (
	fieldValue = "value"
	fieldUnit  = "unit"
	fieldFlag  = "flag"
)

// Generic fetches the primitives of any module and applies the record's
// module config to each.
type Generic struct {
	moduleID string
}

// NewGeneric creates a generic fetcher for a module id.
func NewGeneric(moduleID string) *Generic {
	return &Generic{moduleID: moduleID}
}

// ModuleID implements Fetcher.
func (g *Generic) ModuleID() string { return g.moduleID }

// Fetch implements Fetcher.
func (g *Generic) Fetch(ctx context.Context, run *Run, moduleName string) (export.Dataset, error) {
	prims, err := g.primitives(ctx, run, moduleName)
	if err != nil {
		return nil, err
	}
	records := make([]export.Record, 0, len(prims))
	for _, p := range prims {
		records = append(records, p.record(moduleName))
	}
	return export.Dataset{moduleName: records}, nil
}

// primitive is one stored document with its resolved module config.
type primitive struct {
	moduleID string
	doc      map[string]any
	config   *export.ModuleConfig
	version  *int
	configID string
}

func (p primitive) record(category string) export.Record {
	start, _ := export.TimeValue(p.doc[export.FieldStartDateTime])
	uid, _ := p.doc[export.FieldUserID].(string)
	return export.Record{
		Category:       category,
		ModuleID:       p.moduleID,
		ModuleConfigID: p.configID,
		ConfigVersion:  p.version,
		UserID:         uid,
		StartTime:      start,
		Fields:         p.doc,
	}
}

// primitives queries a module's documents and resolves their configs.
// configKeys lists the fields that may hold the config id, in order.
func (g *Generic) primitives(ctx context.Context, run *Run, moduleName string, configKeys ...string) ([]primitive, error) {
	req := run.Request
	_, ranged := rangedModules[g.moduleID]
	docs, err := run.Primitives.RetrievePrimitives(ctx, export.PrimitiveQuery{
		ModuleName:      moduleName,
		DeploymentID:    run.Deployment.ID,
		From:            req.FromDate,
		To:              req.ToDate,
		UserIDs:         req.UserIDs,
		UseCreationTime: req.UseCreationTime,
		PartialOverlap:  ranged,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve %s primitives: %w", moduleName, err)
	}
	if len(configKeys) == 0 {
		configKeys = []string{export.FieldModuleConfigID}
	}

	out := make([]primitive, 0, len(docs))
	for _, doc := range docs {
		p := primitive{moduleID: g.moduleID, doc: doc}
		for _, key := range configKeys {
			if id, ok := doc[key].(string); ok && id != "" {
				p.configID = id
				break
			}
		}
		if v, ok := export.IntValue(doc[export.FieldModuleConfigVersion]); ok {
			p.version = &v
		}
		if run.Configs != nil {
			mc, err := run.Configs.Resolve(ctx, g.moduleID, p.configID, p.version)
			if err != nil {
				return nil, err
			}
			p.config = mc
		}
		applyConfig(p.doc, p.config)
		out = append(out, p)
	}
	return out, nil
}

// applyConfig converts the value to the configured unit and flags it
// against the configured thresholds. A nil config leaves the document as-is.
func applyConfig(doc map[string]any, mc *export.ModuleConfig) {
	if mc == nil {
		return
	}
	value, ok := export.FloatValue(doc[fieldValue])
	if !ok {
		return
	}

	if target, ok := mc.Body[configUnit].(string); ok && target != "" {
		from, _ := doc[fieldUnit].(string)
		if converted, ok := convertUnit(value, from, target); ok {
			value = converted
			doc[fieldValue] = value
			doc[fieldUnit] = target
		}
	}

	if flag, ok := flagFor(value, mc.Body[configThresholds]); ok {
		doc[fieldFlag] = flag
	}
}

type unitPair struct{ from, to string }

var conversions = map[unitPair]func(float64) float64{
	{"kg", "lb"}:        func(v float64) float64 { return v * 2.20462 },
	{"lb", "kg"}:        func(v float64) float64 { return v / 2.20462 },
	{"cm", "in"}:        func(v float64) float64 { return v / 2.54 },
	{"in", "cm"}:        func(v float64) float64 { return v * 2.54 },
	{"c", "f"}:          func(v float64) float64 { return v*9/5 + 32 },
	{"f", "c"}:          func(v float64) float64 { return (v - 32) * 5 / 9 },
	{"mmol/l", "mg/dl"}: func(v float64) float64 { return v * 18 },
	{"mg/dl", "mmol/l"}: func(v float64) float64 { return v / 18 },
}

// convertUnit converts between known units, rounding to two decimals.
func convertUnit(v float64, from, to string) (float64, bool) {
	from, to = normalizeUnit(from), normalizeUnit(to)
	if from == "" || from == to {
		return v, false
	}
	fn, ok := conversions[unitPair{from, to}]
	if !ok {
		return v, false
	}
	return math.Round(fn(v)*100) / 100, true
}

func normalizeUnit(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	return strings.TrimPrefix(u, "°")
}

// flagFor returns the severity of the first threshold whose [min, max]
// range holds v. Bounds may be omitted.
func flagFor(v float64, thresholds any) (string, bool) {
	list, ok := thresholds.([]any)
	if !ok {
		return "", false
	}
	for _, item := range list {
		t, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if lo, ok := export.FloatValue(t["min"]); ok && v < lo {
			continue
		}
		if hi, ok := export.FloatValue(t["max"]); ok && v > hi {
			continue
		}
		if sev, ok := t["severity"].(string); ok {
			return sev, true
		}
	}
	return "", false
}
