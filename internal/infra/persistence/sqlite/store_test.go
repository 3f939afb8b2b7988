package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"resourcechassis/internal/entitymodel/demo"
	"resourcechassis/pkg/domain"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	reg, err := demo.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "chassis.db")
	store, err := NewStore(context.Background(), path, reg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func insertGender(t *testing.T, s *Store, name string, active bool) int64 {
	t.Helper()
	rec, err := s.Insert(context.Background(), demo.EntityGender, domain.Record{"name": name, "is_active": active, "is_deleted": false})
	if err != nil {
		t.Fatalf("insert gender: %v", err)
	}
	id, ok := rec["id"].(int64)
	if !ok || id == 0 {
		t.Fatalf("expected generated integer id, got %#v", rec["id"])
	}
	return id
}

func TestInsertAndFindRoundTripsValues(t *testing.T) {
	s, path := newTestStore(t)
	if s.Path() != path {
		t.Fatalf("unexpected path %q", s.Path())
	}
	ctx := context.Background()
	genderID := insertGender(t, s, "Female", true)
	created := time.Date(2024, 5, 1, 10, 30, 0, 123, time.UTC)
	rec, err := s.Insert(ctx, demo.EntityPerson, domain.Record{
		"full_name":   "Ada Lovelace",
		"national_id": "A-1",
		"age":         int64(36),
		"gender_id":   genderID,
		"created_at":  created,
		"is_deleted":  false,
	})
	if err != nil {
		t.Fatalf("insert person: %v", err)
	}
	got, found, err := s.FindOne(ctx, demo.EntityPerson, demo.Person().ByID(rec["id"]))
	if err != nil || !found {
		t.Fatalf("find person: found=%v err=%v", found, err)
	}
	if got["full_name"] != "Ada Lovelace" || got["age"] != int64(36) {
		t.Fatalf("unexpected record %#v", got)
	}
	if ts, ok := got["created_at"].(time.Time); !ok || !ts.Equal(created) {
		t.Fatalf("expected timestamp %v, got %#v", created, got["created_at"])
	}
	if got["is_deleted"] != false {
		t.Fatalf("expected decoded boolean, got %#v", got["is_deleted"])
	}
	if got["updated_at"] != nil || got["created_by"] != nil {
		t.Fatalf("expected NULL columns to decode as nil: %#v", got)
	}
}

func TestUniqueIndexIgnoresSoftDeletedRows(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	first := insertGender(t, s, "Male", false)
	_, err := s.Insert(ctx, demo.EntityGender, domain.Record{"name": "Male", "is_deleted": false})
	if domain.ErrorCode(err) != domain.EConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := s.ApplyFieldUpdate(ctx, demo.EntityGender, first, domain.Record{"is_deleted": true}); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, found, _ := s.FindOne(ctx, demo.EntityGender, demo.Gender().ByID(first)); found {
		t.Fatalf("soft deleted row should not match the live filter")
	}
	insertGender(t, s, "Male", true)
}

func TestApplyFieldUpdateConflictsAndMissingRows(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	insertGender(t, s, "Male", false)
	female := insertGender(t, s, "Female", true)
	err := s.ApplyFieldUpdate(ctx, demo.EntityGender, female, domain.Record{"name": "Male"})
	if domain.ErrorCode(err) != domain.EConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := s.ApplyFieldUpdate(ctx, demo.EntityGender, int64(999), domain.Record{"name": "X"}); domain.ErrorCode(err) != domain.ENotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.ApplyFieldUpdate(ctx, demo.EntityGender, int64(999), domain.Record{}); domain.ErrorCode(err) != domain.ENotFound {
		t.Fatalf("expected not found for empty update, got %v", err)
	}
	if err := s.ApplyFieldUpdate(ctx, demo.EntityGender, female, domain.Record{}); err != nil {
		t.Fatalf("empty update of existing row: %v", err)
	}
	if err := s.ApplyFieldUpdate(ctx, demo.EntityGender, female, domain.Record{"unknown": 1}); err == nil {
		t.Fatalf("expected unknown column error")
	}
}

func TestFindManyOrdersAndPaginates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	gid := insertGender(t, s, "Female", true)
	for i, name := range []string{"Carol", "Alice", "Bob", "Dave", "Eve"} {
		if _, err := s.Insert(ctx, demo.EntityPerson, domain.Record{
			"full_name": name, "national_id": name, "age": int64(20 + i), "gender_id": gid,
		}); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}
	page, err := s.FindMany(ctx, demo.EntityPerson, demo.Person().LiveFilter(),
		&domain.Order{Field: "full_name"}, &domain.PageRequest{Number: 2, Size: 2})
	if err != nil {
		t.Fatalf("find many: %v", err)
	}
	if page.Count != 5 || page.TotalPages != 3 || page.CurrentPage != 2 || page.PageSize != 2 {
		t.Fatalf("unexpected envelope %+v", page)
	}
	if len(page.Results) != 2 || page.Results[0]["full_name"] != "Carol" || page.Results[1]["full_name"] != "Dave" {
		t.Fatalf("unexpected page results %+v", page.Results)
	}
	desc, err := s.FindMany(ctx, demo.EntityPerson, demo.Person().LiveFilter(), &domain.Order{Field: "age", Descending: true}, nil)
	if err != nil {
		t.Fatalf("find many desc: %v", err)
	}
	if len(desc.Results) != 5 || desc.Results[0]["full_name"] != "Eve" {
		t.Fatalf("unexpected descending results %+v", desc.Results)
	}
	if _, err := s.FindMany(ctx, demo.EntityPerson, domain.Filter{}, &domain.Order{Field: "nope"}, nil); err == nil {
		t.Fatalf("expected unknown order column error")
	}
	empty, err := s.FindMany(ctx, demo.EntityPerson, domain.Filter{}.With("full_name", "Zed"), nil, &domain.PageRequest{Number: 1, Size: 10})
	if err != nil {
		t.Fatalf("empty page: %v", err)
	}
	if empty.Count != 0 || empty.Results == nil || len(empty.Results) != 0 {
		t.Fatalf("expected empty results slice, got %+v", empty)
	}
}

func TestUUIDKeysAndRemove(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	rec, err := s.Insert(ctx, demo.EntityTag, domain.Record{"label": "blue", "weight": 1.5})
	if err != nil {
		t.Fatalf("insert tag: %v", err)
	}
	id, _ := rec["id"].(string)
	if len(id) != 36 {
		t.Fatalf("expected generated uuid, got %#v", rec["id"])
	}
	if rec["weight"] != 1.5 {
		t.Fatalf("unexpected weight %#v", rec["weight"])
	}
	if err := s.Remove(ctx, demo.EntityTag, id); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(ctx, demo.EntityTag, id); domain.ErrorCode(err) != domain.ENotFound {
		t.Fatalf("expected not found on second remove, got %v", err)
	}
	if _, found, err := s.FindOne(ctx, demo.EntityTag, domain.Filter{}.With("id", id)); err != nil || found {
		t.Fatalf("expected removed row to be gone: found=%v err=%v", found, err)
	}
}

func TestReopenKeepsRowsAndMigrationIsIdempotent(t *testing.T) {
	s, path := newTestStore(t)
	insertGender(t, s, "Female", true)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	reg, _ := demo.Registry()
	reopened, err := NewStore(context.Background(), path, reg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	rec, found, err := reopened.FindOne(context.Background(), demo.EntityGender, domain.Filter{}.With("name", "Female"))
	if err != nil || !found || rec["is_active"] != true {
		t.Fatalf("expected persisted row, got %#v found=%v err=%v", rec, found, err)
	}
}

func TestUnregisteredEntity(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Insert(context.Background(), "ghost", domain.Record{})
	if err == nil {
		t.Fatalf("expected unregistered entity error, got %v", err)
	}
}

func TestIsUniqueViolationRejectsOtherErrors(t *testing.T) {
	if isUniqueViolation(errors.New("boom")) {
		t.Fatalf("plain errors are not unique violations")
	}
}
