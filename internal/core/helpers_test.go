package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"resourcechassis/internal/entitymodel"
	"resourcechassis/internal/entitymodel/demo"
	"resourcechassis/internal/infra/persistence/memory"
	"resourcechassis/pkg/domain"
)

const (
	adminToken = "admin_token"
	guestToken = "guest_token"
	adminID    = "26957b74-47d0-40df-96a1-f104f3828552"
)

type fakeResolver struct {
	actors  map[string]domain.Actor
	revoked map[string]bool
	err     error
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		actors: map[string]domain.Actor{
			adminToken: {
				ID:          adminID,
				Scopes:      domain.ParseScopes("create update delete"),
				Permissions: []string{"can_create", "can_update", "can_delete"},
				Active:      true,
				TokenID:     "admin",
			},
			guestToken: {ID: "guest", Active: true, TokenID: "guest"},
		},
		revoked: map[string]bool{},
	}
}

func (f *fakeResolver) Resolve(_ context.Context, credential string) (domain.Actor, bool, error) {
	if f.err != nil {
		return domain.Actor{}, false, f.err
	}
	a, ok := f.actors[credential]
	return a, ok, nil
}

func (f *fakeResolver) IsRevoked(_ context.Context, a domain.Actor) (bool, error) {
	return f.revoked[a.TokenID], nil
}

type notice struct {
	method string
	domain.Notice
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
	err     error
	panics  bool
}

func (r *recordingNotifier) record(method string, n domain.Notice) error {
	if r.panics {
		panic("notifier exploded")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice{method: method, Notice: n})
	return r.err
}

func (r *recordingNotifier) CreationSucceeded(_ context.Context, n domain.Notice) error {
	return r.record("CreationSucceeded", n)
}
func (r *recordingNotifier) CreationFailed(_ context.Context, n domain.Notice) error {
	return r.record("CreationFailed", n)
}
func (r *recordingNotifier) UpdateSucceeded(_ context.Context, n domain.Notice) error {
	return r.record("UpdateSucceeded", n)
}
func (r *recordingNotifier) UpdateFailed(_ context.Context, n domain.Notice) error {
	return r.record("UpdateFailed", n)
}
func (r *recordingNotifier) DeletionSucceeded(_ context.Context, n domain.Notice) error {
	return r.record("DeletionSucceeded", n)
}
func (r *recordingNotifier) DeletionFailed(_ context.Context, n domain.Notice) error {
	return r.record("DeletionFailed", n)
}

func (r *recordingNotifier) all() []notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notice(nil), r.notices...)
}

func (r *recordingNotifier) last(t *testing.T) notice {
	t.Helper()
	all := r.all()
	if len(all) == 0 {
		t.Fatalf("expected a notification")
	}
	return all[len(all)-1]
}

// failingStore wraps a store and fails the configured methods.
type failingStore struct {
	domain.Store
	failFind, failFindMany, failInsert, failUpdate, failRemove error
}

func (f *failingStore) FindOne(ctx context.Context, e domain.EntityType, filter domain.Filter) (domain.Record, bool, error) {
	if f.failFind != nil {
		return nil, false, f.failFind
	}
	return f.Store.FindOne(ctx, e, filter)
}

func (f *failingStore) FindMany(ctx context.Context, e domain.EntityType, filter domain.Filter, o *domain.Order, p *domain.PageRequest) (domain.PagedResult[domain.Record], error) {
	if f.failFindMany != nil {
		return domain.PagedResult[domain.Record]{}, f.failFindMany
	}
	return f.Store.FindMany(ctx, e, filter, o, p)
}

func (f *failingStore) Insert(ctx context.Context, e domain.EntityType, r domain.Record) (domain.Record, error) {
	if f.failInsert != nil {
		return nil, f.failInsert
	}
	return f.Store.Insert(ctx, e, r)
}

func (f *failingStore) ApplyFieldUpdate(ctx context.Context, e domain.EntityType, id any, r domain.Record) error {
	if f.failUpdate != nil {
		return f.failUpdate
	}
	return f.Store.ApplyFieldUpdate(ctx, e, id, r)
}

func (f *failingStore) Remove(ctx context.Context, e domain.EntityType, id any) error {
	if f.failRemove != nil {
		return f.failRemove
	}
	return f.Store.Remove(ctx, e, id)
}

var errBackend = errors.New("backend unavailable")

type fixture struct {
	registry *entitymodel.Registry
	store    *memory.Store
	male     int64
	female   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := demo.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	store := memory.NewStore(reg)
	f := &fixture{registry: reg, store: store}
	for _, g := range demo.Genders() {
		g["is_deleted"] = false
		rec, err := store.Insert(context.Background(), demo.EntityGender, g)
		if err != nil {
			t.Fatalf("seed gender: %v", err)
		}
		if g["name"] == "Male" {
			f.male = rec["id"].(int64)
		} else {
			f.female = rec["id"].(int64)
		}
	}
	return f
}

func (f *fixture) person(t *testing.T, name, nationalID string) domain.Record {
	t.Helper()
	rec, err := f.store.Insert(context.Background(), demo.EntityPerson, domain.Record{
		"full_name": name, "national_id": nationalID, "gender_id": f.female, "is_deleted": false,
	})
	if err != nil {
		t.Fatalf("seed person: %v", err)
	}
	return rec
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}
