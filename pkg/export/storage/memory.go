package storage

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cohortline/exportd/pkg/export"
)

// MemoryStorage implements profile and process persistence in memory.
// It enforces the same default-profile and transition rules as SQLite.
type MemoryStorage struct {
	mu        sync.RWMutex
	profiles  map[string]*export.Profile
	processes map[string]*export.Process
	now       func() time.Time
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		profiles:  make(map[string]*export.Profile),
		processes: make(map[string]*export.Process),
		now:       time.Now,
	}
}

// Close implements Storage.
func (s *MemoryStorage) Close() error {
	return nil
}

func copyProfile(p *export.Profile) *export.Profile {
	c := *p
	c.Content = export.CloneMap(p.Content)
	return &c
}

func copyProcess(p *export.Process) *export.Process {
	c := *p
	c.Params = export.CloneMap(p.Params)
	if p.ProcessingStartedAt != nil {
		t := *p.ProcessingStartedAt
		c.ProcessingStartedAt = &t
	}
	return &c
}

func sameScope(a, b *export.Profile) bool {
	return a.DeploymentID == b.DeploymentID && a.OrganizationID == b.OrganizationID
}

// CreateProfile implements export.ProfileStore.
func (s *MemoryStorage) CreateProfile(_ context.Context, p *export.Profile) error {
	if err := p.ValidateScope(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := s.profiles[p.ID]; ok {
		return export.NewStorageError("memory", "create_profile", export.ErrConflict)
	}
	if err := s.checkName(p); err != nil {
		return err
	}
	now := s.now().UTC()
	p.CreateDateTime, p.UpdateDateTime = now, now
	if p.Default {
		s.unsetDefault(p)
	}
	s.profiles[p.ID] = copyProfile(p)
	return nil
}

// UpdateProfile implements export.ProfileStore.
func (s *MemoryStorage) UpdateProfile(_ context.Context, p *export.Profile) error {
	if err := p.ValidateScope(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.profiles[p.ID]
	if !ok {
		return export.NewNotFoundError("profile", p.ID)
	}
	if err := s.checkName(p); err != nil {
		return err
	}
	p.CreateDateTime = existing.CreateDateTime
	p.UpdateDateTime = s.now().UTC()
	if p.Default {
		s.unsetDefault(p)
	}
	s.profiles[p.ID] = copyProfile(p)
	return nil
}

func (s *MemoryStorage) checkName(p *export.Profile) error {
	for _, other := range s.profiles {
		if other.ID != p.ID && other.Name == p.Name && sameScope(other, p) {
			return export.NewStorageError("memory", "save_profile", export.ErrConflict)
		}
	}
	return nil
}

func (s *MemoryStorage) unsetDefault(p *export.Profile) {
	for _, other := range s.profiles {
		if other.ID != p.ID && other.Default && sameScope(other, p) {
			other.Default = false
		}
	}
}

// GetProfile implements export.ProfileStore.
func (s *MemoryStorage) GetProfile(_ context.Context, id string) (*export.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, export.NewNotFoundError("profile", id)
	}
	return copyProfile(p), nil
}

// FindProfile implements export.ProfileStore.
func (s *MemoryStorage) FindProfile(_ context.Context, name, deploymentID, organizationID string) (*export.Profile, error) {
	return s.findOne(name, func(p *export.Profile) bool {
		return p.Name == name && p.DeploymentID == deploymentID && p.OrganizationID == organizationID
	})
}

// DefaultProfile implements export.ProfileStore.
func (s *MemoryStorage) DefaultProfile(_ context.Context, deploymentID, organizationID string) (*export.Profile, error) {
	return s.findOne("default:"+deploymentID+organizationID, func(p *export.Profile) bool {
		return p.Default && p.DeploymentID == deploymentID && p.OrganizationID == organizationID
	})
}

func (s *MemoryStorage) findOne(id string, match func(*export.Profile) bool) (*export.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if match(p) {
			return copyProfile(p), nil
		}
	}
	return nil, export.NewNotFoundError("profile", id)
}

// ListProfiles implements export.ProfileStore, sorted by name.
func (s *MemoryStorage) ListProfiles(_ context.Context, deploymentID, organizationID string) ([]*export.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*export.Profile{}
	for _, p := range s.profiles {
		if p.DeploymentID == deploymentID && p.OrganizationID == organizationID {
			out = append(out, copyProfile(p))
		}
	}
	slices.SortFunc(out, func(a, b *export.Profile) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// DeleteProfile implements export.ProfileStore.
func (s *MemoryStorage) DeleteProfile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return export.NewNotFoundError("profile", id)
	}
	delete(s.profiles, id)
	return nil
}

// CreateProcess implements export.ProcessStore.
func (s *MemoryStorage) CreateProcess(_ context.Context, p *export.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := s.processes[p.ID]; ok {
		return export.NewStorageError("memory", "create_process", export.ErrConflict)
	}
	if p.Status == "" {
		p.Status = export.StatusCreated
	}
	now := s.now().UTC()
	p.CreateDateTime, p.UpdateDateTime = now, now
	s.processes[p.ID] = copyProcess(p)
	return nil
}

// GetProcess implements export.ProcessStore.
func (s *MemoryStorage) GetProcess(_ context.Context, id string) (*export.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.processes[id]
	if !ok {
		return nil, export.NewNotFoundError("process", id)
	}
	return copyProcess(p), nil
}

// TransitionProcess implements export.ProcessStore.
func (s *MemoryStorage) TransitionProcess(_ context.Context, id string, from export.ProcessStatus, u export.ProcessUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.processes[id]
	if !ok {
		return export.NewNotFoundError("process", id)
	}
	if p.Status != from {
		return export.ErrConflict
	}
	p.Status = u.Status
	p.Result = u.Result
	p.Error = u.Error
	if u.ProcessingStartedAt != nil {
		t := *u.ProcessingStartedAt
		p.ProcessingStartedAt = &t
	}
	p.UpdateDateTime = s.now().UTC()
	return nil
}

// MarkSeen implements export.ProcessStore.
func (s *MemoryStorage) MarkSeen(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[id]
	if !ok {
		return export.NewNotFoundError("process", id)
	}
	p.Seen = true
	p.UpdateDateTime = s.now().UTC()
	return nil
}

// ListProcesses implements export.ProcessStore, oldest first.
func (s *MemoryStorage) ListProcesses(_ context.Context, q export.ProcessQuery) ([]*export.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*export.Process{}
	for _, id := range slices.Sorted(maps.Keys(s.processes)) {
		p := s.processes[id]
		if matchesQuery(p, q) {
			out = append(out, copyProcess(p))
		}
	}
	slices.SortStableFunc(out, func(a, b *export.Process) int { return a.CreateDateTime.Compare(b.CreateDateTime) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// DeleteProcess implements export.ProcessStore.
func (s *MemoryStorage) DeleteProcess(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processes[id]; !ok {
		return export.NewNotFoundError("process", id)
	}
	delete(s.processes, id)
	return nil
}

func matchesQuery(p *export.Process, q export.ProcessQuery) bool {
	if q.RequesterID != "" && p.RequesterID != q.RequesterID {
		return false
	}
	if q.DeploymentID != "" && p.DeploymentID != q.DeploymentID {
		return false
	}
	if q.OrganizationID != "" && p.OrganizationID != q.OrganizationID {
		return false
	}
	if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, p.Status) {
		return false
	}
	if len(q.ExportTypes) > 0 && !slices.Contains(q.ExportTypes, p.ExportType) {
		return false
	}
	if q.UpdatedBefore != nil && !p.UpdateDateTime.Before(*q.UpdatedBefore) {
		return false
	}
	if q.ProcessingStartedBefore != nil {
		if p.ProcessingStartedAt == nil || !p.ProcessingStartedAt.Before(*q.ProcessingStartedBefore) {
			return false
		}
	}
	return true
}
