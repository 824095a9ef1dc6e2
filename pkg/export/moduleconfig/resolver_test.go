package moduleconfig

import (
	"context"
	"sync"
	"testing"

	"cohortline/exportd/pkg/export"
	"cohortline/exportd/pkg/export/exporttest"
)

func config(id string, version *int, unit string) export.ModuleConfig {
	return export.ModuleConfig{
		ID:         id,
		ModuleID:   "Weight",
		ModuleName: "Weight",
		Version:    version,
		Body:       map[string]any{"unit": unit},
	}
}

func newResolver(configs ...export.ModuleConfig) (*Resolver, *exporttest.Repository) {
	repo := exporttest.NewRepository()
	d := &export.Deployment{ID: "d1", ModuleConfigs: configs}
	repo.AddDeployment(d)
	return NewResolver(d, repo, nil), repo
}

func TestResolver_ExactHit(t *testing.T) {
	r, repo := newResolver(config("c1", exporttest.Version(2), "kg"))

	mc, err := r.Resolve(context.Background(), "Weight", "c1", exporttest.Version(2))
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if mc == nil || mc.Body["unit"] != "kg" {
		t.Fatalf("Resolve() = %+v, want kg config", mc)
	}
	if repo.RevisionCalls.Load() != 0 {
		t.Error("exact hit should not query revisions")
	}
}

func TestResolver_VersionZeroAndNoneMatchUnversioned(t *testing.T) {
	r, _ := newResolver(config("c1", nil, "lb"))
	ctx := context.Background()

	zero, err := r.Resolve(ctx, "Weight", "c1", exporttest.Version(0))
	if err != nil {
		t.Fatalf("Resolve(0) failed: %v", err)
	}
	none, err := r.Resolve(ctx, "Weight", "c1", nil)
	if err != nil {
		t.Fatalf("Resolve(nil) failed: %v", err)
	}
	if zero == nil || none == nil {
		t.Fatal("both lookups should resolve")
	}
	if zero.Body["unit"] != none.Body["unit"] || zero.Version != nil {
		t.Errorf("version 0 and none resolved differently: %+v vs %+v", zero, none)
	}
}

func TestResolver_VersionZeroPreferredWhenAmbiguous(t *testing.T) {
	r, _ := newResolver(config("c1", exporttest.Version(0), "kg"), config("c1", nil, "lb"))

	mc, err := r.Resolve(context.Background(), "Weight", "c1", exporttest.Version(0))
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if mc == nil || mc.Body["unit"] != "kg" {
		t.Errorf("Resolve() = %+v, want genuine version 0", mc)
	}
}

func TestResolver_RevisionQueriedOnce(t *testing.T) {
	r, repo := newResolver(config("c1", exporttest.Version(3), "kg"))
	repo.AddRevision(export.Revision{
		DeploymentID:  "d1",
		Version:       1,
		ModuleConfigs: []export.ModuleConfig{config("c1", exporttest.Version(1), "lb")},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mc, err := r.Resolve(ctx, "Weight", "c1", exporttest.Version(1))
		if err != nil {
			t.Fatalf("Resolve() failed: %v", err)
		}
		if mc == nil || mc.Body["unit"] != "lb" {
			t.Fatalf("Resolve() = %+v, want historical lb config", mc)
		}
	}
	if got := repo.RevisionCalls.Load(); got != 1 {
		t.Errorf("revision queried %d times, want 1", got)
	}
}

func TestResolver_MissingConfigTolerated(t *testing.T) {
	r, repo := newResolver()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		mc, err := r.Resolve(ctx, "Weight", "gone", exporttest.Version(5))
		if err != nil {
			t.Fatalf("Resolve() failed: %v", err)
		}
		if mc != nil {
			t.Fatalf("Resolve() = %+v, want nil", mc)
		}
	}
	if got := repo.RevisionCalls.Load(); got != 1 {
		t.Errorf("missing config queried %d times, want 1", got)
	}
}

func TestResolver_QuestionnaireIDIndexed(t *testing.T) {
	q := export.ModuleConfig{
		ID:       "cfg-9",
		ModuleID: "Questionnaire",
		Version:  exporttest.Version(1),
		Body:     map[string]any{"id": "q-42", "name": "PHQ"},
	}
	r, _ := newResolver(q)

	mc, err := r.Resolve(context.Background(), "Questionnaire", "q-42", exporttest.Version(1))
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if mc == nil || mc.ID != "cfg-9" {
		t.Errorf("Resolve() = %+v, want cfg-9", mc)
	}
}

func TestResolver_ConcurrentAccess(t *testing.T) {
	r, repo := newResolver(config("c1", exporttest.Version(3), "kg"))
	repo.AddRevision(export.Revision{
		DeploymentID:  "d1",
		ModuleConfigs: []export.ModuleConfig{config("c1", exporttest.Version(2), "lb")},
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background(), "Weight", "c1", exporttest.Version(2)); err != nil {
				t.Errorf("Resolve() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := repo.RevisionCalls.Load(); got != 1 {
		t.Errorf("revision queried %d times, want 1", got)
	}
}

func TestArena_PartitionsByDeployment(t *testing.T) {
	repo := exporttest.NewRepository()
	arena := NewArena(repo, nil)

	d1 := &export.Deployment{ID: "d1", ModuleConfigs: []export.ModuleConfig{config("c1", nil, "kg")}}
	d2 := &export.Deployment{ID: "d2"}

	r1 := arena.Resolver(d1)
	if arena.Resolver(d1) != r1 {
		t.Error("arena should reuse the deployment resolver")
	}
	if arena.Resolver(d2).Index().Len() != 0 {
		t.Error("deployments must not share an index")
	}
}
