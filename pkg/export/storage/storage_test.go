package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export"
)

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func backends(t *testing.T) map[string]Storage {
	t.Helper()

	mem := NewMemoryStorage()
	mem.now = tickingClock()
	out := map[string]Storage{"memory": mem}

	for _, driver := range []string{DriverCgo, DriverPureGo} {
		s, err := NewSQLiteStorage(config.SQLiteConfig{
			Path:         filepath.Join(t.TempDir(), driver+".db"),
			Driver:       driver,
			MaxOpenConns: 1,
			WALMode:      true,
			BusyTimeout:  5 * time.Second,
		})
		if err != nil {
			t.Fatalf("NewSQLiteStorage(%s) failed: %v", driver, err)
		}
		s.now = tickingClock()
		t.Cleanup(func() { s.Close() })
		out["sqlite/"+driver] = s
	}
	return out
}

func TestProfiles_SingleDefaultPerScope(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := &export.Profile{Name: "a", DeploymentID: "d1", Content: map[string]any{"view": "USER"}, Default: true}
			second := &export.Profile{Name: "b", DeploymentID: "d1", Content: map[string]any{"view": "DAY"}, Default: true}
			other := &export.Profile{Name: "c", DeploymentID: "d2", Content: map[string]any{}, Default: true}
			for _, p := range []*export.Profile{first, second, other} {
				if err := s.CreateProfile(ctx, p); err != nil {
					t.Fatalf("CreateProfile(%s) failed: %v", p.Name, err)
				}
			}

			def, err := s.DefaultProfile(ctx, "d1", "")
			if err != nil {
				t.Fatalf("DefaultProfile() failed: %v", err)
			}
			if def.Name != "b" || def.Content["view"] != "DAY" {
				t.Errorf("default = %s %v, want b", def.Name, def.Content)
			}
			got, _ := s.GetProfile(ctx, first.ID)
			if got.Default {
				t.Error("previous default was not unset")
			}
			if def, _ := s.DefaultProfile(ctx, "d2", ""); def == nil || def.Name != "c" {
				t.Error("other scope default should be untouched")
			}

			first.Default = true
			if err := s.UpdateProfile(ctx, first); err != nil {
				t.Fatalf("UpdateProfile() failed: %v", err)
			}
			if def, _ := s.DefaultProfile(ctx, "d1", ""); def.Name != "a" {
				t.Errorf("default after update = %s, want a", def.Name)
			}
			list, err := s.ListProfiles(ctx, "d1", "")
			if err != nil {
				t.Fatalf("ListProfiles() failed: %v", err)
			}
			defaults := 0
			for _, p := range list {
				if p.Default {
					defaults++
				}
			}
			if len(list) != 2 || defaults != 1 {
				t.Errorf("list = %d profiles with %d defaults", len(list), defaults)
			}
		})
	}
}

func TestProfiles_Errors(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := s.CreateProfile(ctx, &export.Profile{Name: "x", DeploymentID: "d1", OrganizationID: "o1"})
			if !export.IsValidation(err) {
				t.Errorf("two scopes: error = %v, want validation", err)
			}

			if err := s.CreateProfile(ctx, &export.Profile{Name: "x", DeploymentID: "d1", Content: map[string]any{}}); err != nil {
				t.Fatalf("CreateProfile() failed: %v", err)
			}
			err = s.CreateProfile(ctx, &export.Profile{Name: "x", DeploymentID: "d1", Content: map[string]any{}})
			if !errors.Is(err, export.ErrConflict) {
				t.Errorf("duplicate name: error = %v, want ErrConflict", err)
			}

			if _, err := s.DefaultProfile(ctx, "d1", ""); !errors.Is(err, export.ErrNotFound) {
				t.Errorf("DefaultProfile() error = %v, want ErrNotFound", err)
			}
			if _, err := s.FindProfile(ctx, "missing", "d1", ""); !errors.Is(err, export.ErrNotFound) {
				t.Errorf("FindProfile() error = %v, want ErrNotFound", err)
			}
			if err := s.UpdateProfile(ctx, &export.Profile{ID: "nope", Name: "y", DeploymentID: "d1"}); !errors.Is(err, export.ErrNotFound) {
				t.Errorf("UpdateProfile() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestProcesses_TransitionIsCompareAndSet(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := &export.Process{ExportType: export.ExportTypeDefault, RequesterID: "r1", DeploymentID: "d1",
				Params: map[string]any{"format": "CSV"}}
			if err := s.CreateProcess(ctx, p); err != nil {
				t.Fatalf("CreateProcess() failed: %v", err)
			}
			if p.ID == "" || p.Status != export.StatusCreated {
				t.Fatalf("process = %+v", p)
			}

			started := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
			if err := s.TransitionProcess(ctx, p.ID, export.StatusCreated, export.ProcessUpdate{
				Status: export.StatusProcessing, ProcessingStartedAt: &started,
			}); err != nil {
				t.Fatalf("claim failed: %v", err)
			}
			err := s.TransitionProcess(ctx, p.ID, export.StatusCreated, export.ProcessUpdate{Status: export.StatusProcessing})
			if !errors.Is(err, export.ErrConflict) {
				t.Errorf("second claim error = %v, want ErrConflict", err)
			}

			result := export.ObjectRef{Bucket: "exports", Key: "export/" + p.ID + ".zip"}
			if err := s.TransitionProcess(ctx, p.ID, export.StatusProcessing, export.ProcessUpdate{
				Status: export.StatusDone, Result: result,
			}); err != nil {
				t.Fatalf("finish failed: %v", err)
			}
			if err := s.TransitionProcess(ctx, p.ID, export.StatusProcessing, export.ProcessUpdate{
				Status: export.StatusError, Error: "late",
			}); !errors.Is(err, export.ErrConflict) {
				t.Errorf("late error transition = %v, want ErrConflict", err)
			}

			got, err := s.GetProcess(ctx, p.ID)
			if err != nil {
				t.Fatalf("GetProcess() failed: %v", err)
			}
			if got.Status != export.StatusDone || got.Result != result || got.Error != "" {
				t.Errorf("process = %+v", got)
			}
			if got.ProcessingStartedAt == nil || !got.ProcessingStartedAt.Equal(started) {
				t.Errorf("ProcessingStartedAt = %v, want %v", got.ProcessingStartedAt, started)
			}
			if got.Params["format"] != "CSV" {
				t.Errorf("params = %v", got.Params)
			}

			if err := s.TransitionProcess(ctx, "missing", export.StatusCreated, export.ProcessUpdate{}); !errors.Is(err, export.ErrNotFound) {
				t.Errorf("missing process error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestProcesses_ListAndSeen(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			specs := []struct {
				requester string
				typ       export.ExportType
			}{
				{"r1", export.ExportTypeDefault},
				{"r1", export.ExportTypeUser},
				{"r2", export.ExportTypeSummaryReport},
			}
			var ids []string
			for _, sp := range specs {
				p := &export.Process{RequesterID: sp.requester, ExportType: sp.typ, DeploymentID: "d1"}
				if err := s.CreateProcess(ctx, p); err != nil {
					t.Fatalf("CreateProcess() failed: %v", err)
				}
				ids = append(ids, p.ID)
			}

			list, err := s.ListProcesses(ctx, export.ProcessQuery{RequesterID: "r1"})
			if err != nil {
				t.Fatalf("ListProcesses() failed: %v", err)
			}
			if len(list) != 2 || list[0].ID != ids[0] || list[1].ID != ids[1] {
				t.Errorf("requester list = %v", list)
			}

			list, _ = s.ListProcesses(ctx, export.ProcessQuery{
				ExportTypes: []export.ExportType{export.ExportTypeUser, export.ExportTypeSummaryReport},
			})
			if len(list) != 2 {
				t.Errorf("type filter returned %d, want 2", len(list))
			}

			list, _ = s.ListProcesses(ctx, export.ProcessQuery{Statuses: []export.ProcessStatus{export.StatusCreated}, Limit: 1})
			if len(list) != 1 || list[0].ID != ids[0] {
				t.Errorf("limited list = %v", list)
			}

			if err := s.MarkSeen(ctx, ids[1]); err != nil {
				t.Fatalf("MarkSeen() failed: %v", err)
			}
			if got, _ := s.GetProcess(ctx, ids[1]); !got.Seen {
				t.Error("process not marked seen")
			}

			if err := s.DeleteProcess(ctx, ids[2]); err != nil {
				t.Fatalf("DeleteProcess() failed: %v", err)
			}
			if _, err := s.GetProcess(ctx, ids[2]); !errors.Is(err, export.ErrNotFound) {
				t.Errorf("GetProcess() after delete error = %v", err)
			}
		})
	}
}

func TestProcesses_StuckQuery(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			recent := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

			var ids []string
			for _, started := range []time.Time{old, recent} {
				p := &export.Process{RequesterID: "r", ExportType: export.ExportTypeDefault}
				if err := s.CreateProcess(ctx, p); err != nil {
					t.Fatalf("CreateProcess() failed: %v", err)
				}
				if err := s.TransitionProcess(ctx, p.ID, export.StatusCreated, export.ProcessUpdate{
					Status: export.StatusProcessing, ProcessingStartedAt: &started,
				}); err != nil {
					t.Fatalf("TransitionProcess() failed: %v", err)
				}
				ids = append(ids, p.ID)
			}
			never := &export.Process{RequesterID: "r", ExportType: export.ExportTypeDefault}
			if err := s.CreateProcess(ctx, never); err != nil {
				t.Fatalf("CreateProcess() failed: %v", err)
			}

			cutoff := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
			list, err := s.ListProcesses(ctx, export.ProcessQuery{
				Statuses:                []export.ProcessStatus{export.StatusProcessing},
				ProcessingStartedBefore: &cutoff,
			})
			if err != nil {
				t.Fatalf("ListProcesses() failed: %v", err)
			}
			if len(list) != 1 || list[0].ID != ids[0] {
				t.Errorf("stuck = %v, want only %s", list, ids[0])
			}
		})
	}
}

func TestNew(t *testing.T) {
	s, err := New(config.StorageConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("New(memory) failed: %v", err)
	}
	if _, ok := s.(*MemoryStorage); !ok {
		t.Errorf("New(memory) = %T", s)
	}
	if _, err := New(config.StorageConfig{Backend: "postgres"}); err == nil {
		t.Error("New(postgres) should fail")
	}
}
