// Package memory provides an in-memory implementation of the record store
// used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"resourcechassis/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain store interface.
var _ domain.Store = (*Store)(nil)

type table struct {
	rows  map[string]domain.Record
	order []string
	seq   int64
}

func newTable() *table {
	return &table{rows: make(map[string]domain.Record)}
}

// Store keeps records per entity behind a single lock. Every method runs
// under the lock, which makes each call atomic.
type Store struct {
	mu          sync.RWMutex
	descriptors domain.DescriptorSource
	tables      map[domain.EntityType]*table
}

// NewStore constructs an empty store that learns primary keys and unique
// groups from descriptors.
func NewStore(descriptors domain.DescriptorSource) *Store {
	return &Store{descriptors: descriptors, tables: make(map[domain.EntityType]*table)}
}

func rowKey(id any) string {
	if f, ok := id.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprint(int64(f))
	}
	return fmt.Sprint(id)
}

func (s *Store) descriptor(entity domain.EntityType) (domain.Descriptor, error) {
	d, ok := s.descriptors.Descriptor(entity)
	if !ok {
		return domain.Descriptor{}, fmt.Errorf("memory store: entity %q not registered", entity)
	}
	return d, nil
}

func (s *Store) table(entity domain.EntityType) *table {
	t, ok := s.tables[entity]
	if !ok {
		t = newTable()
		s.tables[entity] = t
	}
	return t
}

func (t *table) each(fn func(domain.Record) bool) {
	for _, key := range t.order {
		if !fn(t.rows[key]) {
			return
		}
	}
}

// FindOne returns the first record, in insertion order, matching filter.
func (s *Store) FindOne(_ context.Context, entity domain.EntityType, filter domain.Filter) (domain.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[entity]
	if !ok {
		return nil, false, nil
	}
	var found domain.Record
	t.each(func(r domain.Record) bool {
		if filter.Matches(r) {
			found = r.Clone()
			return false
		}
		return true
	})
	return found, found != nil, nil
}

// FindMany filters, orders and pages records. Ties keep insertion order.
func (s *Store) FindMany(_ context.Context, entity domain.EntityType, filter domain.Filter, order *domain.Order, page *domain.PageRequest) (domain.PagedResult[domain.Record], error) {
	s.mu.RLock()
	var matched []domain.Record
	if t, ok := s.tables[entity]; ok {
		t.each(func(r domain.Record) bool {
			if filter.Matches(r) {
				matched = append(matched, r.Clone())
			}
			return true
		})
	}
	s.mu.RUnlock()

	if order != nil {
		sort.SliceStable(matched, func(i, j int) bool {
			c := domain.CompareValues(matched[i][order.Field], matched[j][order.Field])
			if order.Descending {
				return c > 0
			}
			return c < 0
		})
	}
	total := len(matched)
	req := domain.PageRequest{Number: 1, Size: total}
	if page != nil {
		req = *page
		start := min(req.Offset(), total)
		end := min(start+req.Size, total)
		matched = matched[start:end]
	}
	return domain.NewPagedResult(matched, total, req), nil
}

// Insert stores a copy of record, assigning a primary key when absent.
func (s *Store) Insert(_ context.Context, entity domain.EntityType, record domain.Record) (domain.Record, error) {
	d, err := s.descriptor(entity)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(entity)
	rec := record.Clone()
	if rec == nil {
		rec = domain.Record{}
	}
	if id, ok := rec[d.PrimaryKey]; !ok || id == nil {
		if d.PrimaryKeyField().Type == domain.FieldInteger {
			t.seq++
			rec[d.PrimaryKey] = t.seq
		} else {
			rec[d.PrimaryKey] = uuid.NewString()
		}
	} else if n, isInt := id.(int64); isInt && n > t.seq {
		t.seq = n
	}
	key := rowKey(rec[d.PrimaryKey])
	if _, exists := t.rows[key]; exists {
		return nil, domain.ConflictError(fmt.Sprintf("%s %v already exists", d.Name(), rec[d.PrimaryKey]))
	}
	if err := uniqueViolation(d, t, rec, ""); err != nil {
		return nil, err
	}
	t.rows[key] = rec
	t.order = append(t.order, key)
	return rec.Clone(), nil
}

// ApplyFieldUpdate overwrites fields of the row id regardless of its
// soft-delete state.
func (s *Store) ApplyFieldUpdate(_ context.Context, entity domain.EntityType, id any, fields domain.Record) error {
	d, err := s.descriptor(entity)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(entity)
	key := rowKey(id)
	current, ok := t.rows[key]
	if !ok {
		return domain.NotFound("Record doesn't exist")
	}
	next := current.Merge(fields)
	next[d.PrimaryKey] = current[d.PrimaryKey]
	if err := uniqueViolation(d, t, next, key); err != nil {
		return err
	}
	t.rows[key] = next
	return nil
}

// Remove deletes the row id outright.
func (s *Store) Remove(_ context.Context, entity domain.EntityType, id any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[entity]
	key := rowKey(id)
	if !ok {
		return domain.NotFound("Record doesn't exist")
	}
	if _, exists := t.rows[key]; !exists {
		return domain.NotFound("Record doesn't exist")
	}
	delete(t.rows, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// uniqueViolation mirrors a partial unique index over live rows: groups
// containing a NULL never collide.
func uniqueViolation(d domain.Descriptor, t *table, rec domain.Record, selfKey string) error {
	if d.HasSoftDelete() {
		if deleted, _ := rec[d.SoftDeleteField].(bool); deleted {
			return nil
		}
	}
	live := d.LiveFilter()
	for _, uc := range d.UniqueConstraints {
		filter := live
		skip := false
		for _, name := range uc.Fields {
			if rec[name] == nil {
				skip = true
				break
			}
			filter = filter.With(name, rec[name])
		}
		if skip {
			continue
		}
		for key, row := range t.rows {
			if key != selfKey && filter.Matches(row) {
				return domain.ConflictError("Similar record already exists")
			}
		}
	}
	return nil
}

// Close is a no-op; the store holds no external resources.
func (s *Store) Close() error { return nil }

// Row returns the stored row id without applying the live filter.
func (s *Store) Row(entity domain.EntityType, id any) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[entity]
	if !ok {
		return nil, false
	}
	r, ok := t.rows[rowKey(id)]
	return r.Clone(), ok
}
