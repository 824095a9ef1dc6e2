// Package exporttest provides in-memory fakes of the repositories the export
// engine consumes. They are intended for tests only.
package exporttest

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"cohortline/exportd/pkg/export"
)

// Repository is an in-memory implementation of the primitive, user,
// consent and deployment repositories.
type Repository struct {
	mu sync.RWMutex

	// Primitives holds documents by deployment id then module name.
	Primitives map[string]map[string][]map[string]any
	// Users holds user documents by deployment id.
	Users map[string][]map[string]any
	// ConsentLogs and EConsentLogs hold signed documents by form id.
	ConsentLogs  map[string][]map[string]any
	EConsentLogs map[string][]map[string]any

	Deployments   map[string]*export.Deployment
	Organizations map[string][]string
	Revisions     map[string][]export.Revision

	RevisionCalls  atomic.Int64
	UserCalls      atomic.Int64
	PrimitiveCalls atomic.Int64
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{
		Primitives:    make(map[string]map[string][]map[string]any),
		Users:         make(map[string][]map[string]any),
		ConsentLogs:   make(map[string][]map[string]any),
		EConsentLogs:  make(map[string][]map[string]any),
		Deployments:   make(map[string]*export.Deployment),
		Organizations: make(map[string][]string),
		Revisions:     make(map[string][]export.Revision),
	}
}

// AddDeployment stores a deployment.
func (r *Repository) AddDeployment(d *export.Deployment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deployments[d.ID] = d
	if d.OrganizationID != "" {
		r.Organizations[d.OrganizationID] = append(r.Organizations[d.OrganizationID], d.ID)
	}
}

// AddPrimitive stores a primitive document for a module.
func (r *Repository) AddPrimitive(deploymentID, moduleName string, doc map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Primitives[deploymentID] == nil {
		r.Primitives[deploymentID] = make(map[string][]map[string]any)
	}
	r.Primitives[deploymentID][moduleName] = append(r.Primitives[deploymentID][moduleName], doc)
}

// AddUser stores a user document.
func (r *Repository) AddUser(deploymentID string, doc map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Users[deploymentID] = append(r.Users[deploymentID], doc)
}

// AddRevision stores a deployment revision.
func (r *Repository) AddRevision(rev export.Revision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Revisions[rev.DeploymentID] = append(r.Revisions[rev.DeploymentID], rev)
}

// RetrievePrimitives implements export.PrimitiveRepository.
func (r *Repository) RetrievePrimitives(_ context.Context, q export.PrimitiveQuery) ([]map[string]any, error) {
	r.PrimitiveCalls.Add(1)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []map[string]any
	for _, doc := range r.Primitives[q.DeploymentID][q.ModuleName] {
		if len(q.UserIDs) > 0 {
			uid, _ := doc[export.FieldUserID].(string)
			if !slices.Contains(q.UserIDs, uid) {
				continue
			}
		}
		if !inRange(doc, q) {
			continue
		}
		out = append(out, export.CloneMap(doc))
	}
	return out, nil
}

func inRange(doc map[string]any, q export.PrimitiveQuery) bool {
	if q.From == nil && q.To == nil {
		return true
	}
	within := func(field string) bool {
		t, ok := export.TimeValue(doc[field])
		if !ok {
			return false
		}
		if q.From != nil && t.Before(*q.From) {
			return false
		}
		if q.To != nil && t.After(*q.To) {
			return false
		}
		return true
	}
	if q.UseCreationTime {
		return within(export.FieldCreateDateTime)
	}
	if q.PartialOverlap {
		return within(export.FieldStartDateTime) || within(export.FieldEndDateTime)
	}
	return within(export.FieldStartDateTime)
}

// RetrieveUsers implements export.UserRepository.
func (r *Repository) RetrieveUsers(_ context.Context, deploymentID string, userIDs []string) ([]map[string]any, error) {
	r.UserCalls.Add(1)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []map[string]any
	for _, doc := range r.Users[deploymentID] {
		id, _ := doc[export.FieldID].(string)
		if len(userIDs) == 0 || slices.Contains(userIDs, id) {
			out = append(out, export.CloneMap(doc))
		}
	}
	return out, nil
}

// RetrieveConsentLogs implements export.ConsentRepository.
func (r *Repository) RetrieveConsentLogs(_ context.Context, consentID string, userIDs []string) ([]map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return filterByUser(r.ConsentLogs[consentID], userIDs), nil
}

// RetrieveEConsentLogs implements export.ConsentRepository.
func (r *Repository) RetrieveEConsentLogs(_ context.Context, econsentID string, userIDs []string) ([]map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return filterByUser(r.EConsentLogs[econsentID], userIDs), nil
}

func filterByUser(docs []map[string]any, userIDs []string) []map[string]any {
	var out []map[string]any
	for _, doc := range docs {
		uid, _ := doc[export.FieldUserID].(string)
		if len(userIDs) == 0 || slices.Contains(userIDs, uid) {
			out = append(out, export.CloneMap(doc))
		}
	}
	return out
}

// RetrieveDeployment implements export.DeploymentRepository.
func (r *Repository) RetrieveDeployment(_ context.Context, deploymentID string) (*export.Deployment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.Deployments[deploymentID]
	if !ok {
		return nil, export.NewNotFoundError("deployment", deploymentID)
	}
	return d, nil
}

// RetrieveDeploymentIDs implements export.DeploymentRepository.
func (r *Repository) RetrieveDeploymentIDs(_ context.Context, organizationID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.Organizations[organizationID]
	if !ok {
		return nil, export.NewNotFoundError("organization", organizationID)
	}
	return slices.Clone(ids), nil
}

// RetrieveRevisionCovering implements export.DeploymentRepository.
func (r *Repository) RetrieveRevisionCovering(_ context.Context, deploymentID, configID string, version int) (*export.Revision, error) {
	r.RevisionCalls.Add(1)
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rev := range r.Revisions[deploymentID] {
		for _, mc := range rev.ModuleConfigs {
			if mc.ID != configID && mc.Body["id"] != configID {
				continue
			}
			if mc.Version != nil && *mc.Version == version {
				return &rev, nil
			}
		}
	}
	return nil, export.NewNotFoundError("revision", configID)
}

// Notifier records notifications.
type Notifier struct {
	mu        sync.Mutex
	Succeeded []string
	Failed    []string
}

// ExportSucceeded implements export.Notifier.
func (n *Notifier) ExportSucceeded(_ context.Context, p *export.Process) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Succeeded = append(n.Succeeded, p.ID)
}

// ExportFailed implements export.Notifier.
func (n *Notifier) ExportFailed(_ context.Context, p *export.Process, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Failed = append(n.Failed, p.ID)
}

// FailedIDs returns a copy of the failed process ids.
func (n *Notifier) FailedIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.Failed)
}

// SucceededIDs returns a copy of the succeeded process ids.
func (n *Notifier) SucceededIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.Succeeded)
}

// Version returns a pointer to v.
func Version(v int) *int {
	return &v
}
