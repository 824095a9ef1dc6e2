package fetch

import (
	"context"
	"fmt"
	"time"

	"cohortline/exportd/pkg/export"
)

// Consent reshapes signed consent or e-consent logs into records. It only
// runs when the request's onboarding allow-list names the module and the
// deployment has a form configured.
type Consent struct {
	moduleID string
}

// NewConsent creates a fetcher for ModuleConsent or ModuleEConsent.
func NewConsent(moduleID string) *Consent {
	return &Consent{moduleID: moduleID}
}

// ModuleID implements Fetcher.
func (c *Consent) ModuleID() string { return c.moduleID }

// Fetch implements Fetcher.
func (c *Consent) Fetch(ctx context.Context, run *Run, moduleName string) (export.Dataset, error) {
	out := export.Dataset{moduleName: {}}
	form, retrieve := c.source(run)
	if form == nil || retrieve == nil || !run.Request.IncludesOnboarding(c.moduleID) {
		return out, nil
	}

	logs, err := retrieve(ctx, form.ID, run.Request.UserIDs)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s logs: %w", c.moduleID, err)
	}
	for _, log := range logs {
		created, _ := export.TimeValue(log[export.FieldCreateDateTime])
		if !inRange(run.Request, created) {
			continue
		}
		uid, _ := log[export.FieldUserID].(string)
		fields := export.CloneMap(log)
		fields[export.FieldModuleID] = c.moduleID
		fields[export.FieldDeploymentID] = run.Deployment.ID
		if _, ok := fields["revision"]; !ok {
			fields["revision"] = form.Revision
		}
		out[moduleName] = append(out[moduleName], export.Record{
			Category:       moduleName,
			ModuleID:       c.moduleID,
			ModuleConfigID: form.ID,
			UserID:         uid,
			StartTime:      created,
			Fields:         fields,
		})
	}
	return out, nil
}

func (c *Consent) source(run *Run) (*export.ConsentForm, func(context.Context, string, []string) ([]map[string]any, error)) {
	if run.Consents == nil {
		return nil, nil
	}
	switch c.moduleID {
	case ModuleConsent:
		return run.Deployment.Consent, run.Consents.RetrieveConsentLogs
	case ModuleEConsent:
		return run.Deployment.EConsent, run.Consents.RetrieveEConsentLogs
	default:
		return nil, nil
	}
}

// inRange reports whether t falls within the request's date range. A zero
// time matches only an open range.
func inRange(req export.Request, t time.Time) bool {
	if req.FromDate == nil && req.ToDate == nil {
		return true
	}
	if t.IsZero() {
		return false
	}
	if req.FromDate != nil && t.Before(*req.FromDate) {
		return false
	}
	return req.ToDate == nil || !t.After(*req.ToDate)
}
