package integration

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"resourcechassis/internal/audit"
	"resourcechassis/internal/blob"
	"resourcechassis/internal/core"
	"resourcechassis/internal/entitymodel"
	"resourcechassis/internal/entitymodel/demo"
	"resourcechassis/internal/infra/persistence/memory"
	"resourcechassis/internal/infra/persistence/sqlite"
	"resourcechassis/pkg/domain"
)

// TestIntegrationSmoke runs a create, read, update and delete cycle through
// the pipeline for every in-process store and archive backend.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	storeVariants := []struct {
		name string
		open func(t *testing.T, reg *entitymodel.Registry) core.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(_ *testing.T, reg *entitymodel.Registry) core.PersistentStore {
				return memory.NewStore(reg)
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T, reg *entitymodel.Registry) core.PersistentStore {
				s, err := sqlite.NewStore(ctx, filepath.Join(t.TempDir(), "smoke.db"), reg)
				if err != nil {
					t.Fatalf("new sqlite store: %v", err)
				}
				return s
			},
		},
	}
	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{name: "memory-blob", open: func(_ *testing.T) blob.Store { return blob.NewMemory() }},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				s, err := blob.NewFilesystem(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return s
			},
		},
	}

	for _, sv := range storeVariants {
		for _, bv := range blobVariants {
			t.Run(sv.name+"/"+bv.name, func(t *testing.T) {
				reg, err := demo.Registry()
				if err != nil {
					t.Fatalf("registry: %v", err)
				}
				store := sv.open(t, reg)
				t.Cleanup(func() { _ = store.Close() })
				archive := audit.NewArchiveNotifier(bv.open(t))

				pipeline := func(entity domain.EntityType) *core.Pipeline {
					p, err := core.NewPipeline(core.PipelineConfig{
						Entity:   entity,
						Registry: reg,
						Store:    store,
						Notifier: archive,
						Logger:   zap.NewNop(),
					})
					if err != nil {
						t.Fatalf("pipeline %s: %v", entity, err)
					}
					return p
				}
				genders, people := pipeline(demo.EntityGender), pipeline(demo.EntityPerson)

				resp := mustCall(t)(genders.Create(ctx, "", map[string]any{"name": "Female", "is_active": true}))
				expectStatus(t, resp, http.StatusCreated)
				genderID := resp.Body.(core.MessageBody).Data.(domain.Record)["id"]

				person := map[string]any{"full_name": "Ada", "national_id": "N-1", "gender_id": genderID}
				resp = mustCall(t)(people.Create(ctx, "", person))
				expectStatus(t, resp, http.StatusCreated)
				id := fmt.Sprint(resp.Body.(core.MessageBody).Data.(domain.Record)["id"])

				expectStatus(t, mustCall(t)(people.Create(ctx, "", person)), http.StatusBadRequest)
				expectStatus(t, mustCall(t)(people.Get(ctx, "", id)), http.StatusOK)
				expectStatus(t, mustCall(t)(people.Update(ctx, "", id, map[string]any{"age": 36})), http.StatusOK)
				expectStatus(t, mustCall(t)(people.List(ctx, "", core.ListQuery{Page: "1", PageSize: "10"})), http.StatusOK)
				expectStatus(t, mustCall(t)(people.Delete(ctx, "", id)), http.StatusNoContent)
				expectStatus(t, mustCall(t)(people.Get(ctx, "", id)), http.StatusNotFound)

				entries, err := archive.Entries(ctx, demo.EntityPerson)
				if err != nil {
					t.Fatalf("entries: %v", err)
				}
				counts := map[string]int{}
				for _, e := range entries {
					counts[string(e.Activity)+"/"+e.Status]++
				}
				want := map[string]int{"create/succeeded": 1, "create/failed": 1, "update/succeeded": 1, "delete/succeeded": 1}
				for k, n := range want {
					if counts[k] != n {
						t.Fatalf("archive %s: got %d want %d (%v)", k, counts[k], n, counts)
					}
				}
			})
		}
	}
}

func mustCall(t *testing.T) func(core.Response, error) core.Response {
	return func(resp core.Response, err error) core.Response {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected fatal error: %v", err)
		}
		return resp
	}
}

func expectStatus(t *testing.T, resp core.Response, want int) {
	t.Helper()
	if resp.Status != want {
		t.Fatalf("status %d want %d: %+v", resp.Status, want, resp.Body)
	}
}
