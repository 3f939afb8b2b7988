package core

import (
	"context"
	"time"

	"resourcechassis/pkg/domain"
)

// MsgRecordMissing is reported when no live record matches an id.
const MsgRecordMissing = "Record doesn't exist"

// RecordService performs the writes of one descriptor against the store.
// Every method issues single-record store calls and never retries.
type RecordService struct {
	desc  domain.Descriptor
	store domain.Store
	now   func() time.Time
}

// NewRecordService constructs a service bound to desc.
func NewRecordService(desc domain.Descriptor, store domain.Store) *RecordService {
	return &RecordService{desc: desc, store: store, now: time.Now}
}

// Descriptor returns the bound descriptor.
func (s *RecordService) Descriptor() domain.Descriptor { return s.desc }

// Create inserts record, initialising the soft-delete flag and timestamps.
func (s *RecordService) Create(ctx context.Context, record domain.Record) (domain.Record, error) {
	rec := record.Clone()
	if rec == nil {
		rec = domain.Record{}
	}
	delete(rec, s.desc.PrimaryKey)
	if s.desc.HasSoftDelete() {
		rec[s.desc.SoftDeleteField] = false
	}
	now := s.now().UTC()
	if s.desc.CreatedAtField != "" {
		rec[s.desc.CreatedAtField] = now
	}
	if s.desc.UpdatedAtField != "" {
		rec[s.desc.UpdatedAtField] = now
	}
	created, err := s.store.Insert(ctx, s.desc.Entity, rec)
	if err != nil {
		return nil, storageFailure("insert", err)
	}
	return created, nil
}

// Get returns the live record with primary key id.
func (s *RecordService) Get(ctx context.Context, id any) (domain.Record, error) {
	rec, ok, err := s.store.FindOne(ctx, s.desc.Entity, s.desc.ByID(id))
	if err != nil {
		return nil, storageFailure("find", err)
	}
	if !ok {
		return nil, domain.NotFound(MsgRecordMissing)
	}
	return rec, nil
}

// List returns a page of live records.
func (s *RecordService) List(ctx context.Context, order *domain.Order, page domain.PageRequest) (domain.PagedResult[domain.Record], error) {
	res, err := s.store.FindMany(ctx, s.desc.Entity, s.desc.LiveFilter(), order, &page)
	if err != nil {
		return domain.PagedResult[domain.Record]{}, storageFailure("list", err)
	}
	return res, nil
}

// Update overwrites the settable fields present in partial on the live record
// id and returns the stored result. Fields absent from partial are untouched.
func (s *RecordService) Update(ctx context.Context, partial domain.Record, id any) (domain.Record, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	fields := make(domain.Record, len(partial)+1)
	for name, value := range partial {
		if name == s.desc.PrimaryKey || name == s.desc.SoftDeleteField || name == s.desc.CreatedAtField {
			continue
		}
		if _, declared := s.desc.Field(name); !declared {
			continue
		}
		fields[name] = value
	}
	if s.desc.UpdatedAtField != "" {
		fields[s.desc.UpdatedAtField] = s.now().UTC()
	}
	if len(fields) > 0 {
		if err := s.store.ApplyFieldUpdate(ctx, s.desc.Entity, id, fields); err != nil {
			return nil, storageFailure("update", err)
		}
	}
	return s.Get(ctx, id)
}

// Delete flags the live record id as deleted, or removes it when the
// descriptor has no soft-delete field.
func (s *RecordService) Delete(ctx context.Context, id any) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if s.desc.HasSoftDelete() {
		fields := domain.Record{s.desc.SoftDeleteField: true}
		if s.desc.UpdatedAtField != "" {
			fields[s.desc.UpdatedAtField] = s.now().UTC()
		}
		if err := s.store.ApplyFieldUpdate(ctx, s.desc.Entity, id, fields); err != nil {
			return storageFailure("soft delete", err)
		}
		return nil
	}
	if err := s.store.Remove(ctx, s.desc.Entity, id); err != nil {
		return storageFailure("remove", err)
	}
	return nil
}

// storageFailure keeps classified store errors (not found, conflict) and
// wraps everything else as a storage failure.
func storageFailure(op string, err error) error {
	switch domain.ErrorCode(err) {
	case domain.ENotFound:
		return domain.NotFound(MsgRecordMissing)
	case domain.EConflict, domain.EInvalid:
		return err
	}
	return domain.StorageError(op, err)
}
