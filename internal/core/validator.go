package core

import (
	"context"
	"fmt"

	"resourcechassis/pkg/domain"
)

// MsgDuplicate is reported when a unique group collides with a live record.
const MsgDuplicate = "Similar record already exists"

// Validator checks foreign keys and unique groups against live records. It
// fails on the first violation, walking foreign keys then unique groups in
// declaration order, and only ever reads from the store.
type Validator struct {
	store       domain.Store
	descriptors domain.DescriptorSource
}

// NewValidator constructs a validator. descriptors resolves foreign key targets.
func NewValidator(store domain.Store, descriptors domain.DescriptorSource) *Validator {
	return &Validator{store: store, descriptors: descriptors}
}

// Validate runs foreign key checks followed by uniqueness checks. excludeID
// is the primary key of the record being updated, nil on create.
func (v *Validator) Validate(ctx context.Context, desc domain.Descriptor, record domain.Record, excludeID any) error {
	if err := v.ValidateForeignKeys(ctx, desc, record); err != nil {
		return err
	}
	return v.ValidateUniqueness(ctx, desc, record, excludeID)
}

// ValidateForeignKeys verifies every non-nil reference in record points at a
// live and, where the target tracks it, active record.
func (v *Validator) ValidateForeignKeys(ctx context.Context, desc domain.Descriptor, record domain.Record) error {
	for _, fk := range desc.ForeignKeys {
		value, present := record[fk.Field]
		if !present || value == nil {
			continue
		}
		target, ok := v.descriptors.Descriptor(fk.References)
		if !ok {
			return fmt.Errorf("foreign key %s.%s: entity %s not registered", desc.Entity, fk.Field, fk.References)
		}
		found, ok, err := v.store.FindOne(ctx, target.Entity, target.LiveFilter().With(fk.ReferencedField, value))
		if err != nil {
			return domain.StorageError("validate foreign key", err)
		}
		if !ok {
			return domain.ValidationError(referenceLabel(fk) + " doesn't exist")
		}
		if inactive(target, found) {
			return domain.ValidationError(referenceLabel(fk) + " is not active")
		}
	}
	return nil
}

// ValidateUniqueness verifies no other live record shares the values of any
// unique group. On update, groups absent from the payload are skipped and
// partially supplied groups are completed from the stored record.
func (v *Validator) ValidateUniqueness(ctx context.Context, desc domain.Descriptor, record domain.Record, excludeID any) error {
	var current domain.Record
	for _, uc := range desc.UniqueConstraints {
		values := make(map[string]any, len(uc.Fields))
		missing := 0
		for _, name := range uc.Fields {
			if val, ok := record[name]; ok {
				values[name] = val
				continue
			}
			missing++
		}
		if len(values) == 0 {
			continue
		}
		if missing > 0 {
			if excludeID == nil {
				continue
			}
			if current == nil {
				stored, ok, err := v.store.FindOne(ctx, desc.Entity, desc.ByID(excludeID))
				if err != nil {
					return domain.StorageError("validate uniqueness", err)
				}
				if !ok {
					// reported as not found by the record service
					return nil
				}
				current = stored
			}
			for _, name := range uc.Fields {
				if _, ok := values[name]; !ok {
					values[name] = current[name]
				}
			}
		}
		filter := desc.LiveFilter()
		hasNull := false
		for _, name := range uc.Fields {
			if values[name] == nil {
				hasNull = true
				break
			}
			filter = filter.With(name, values[name])
		}
		if hasNull {
			// NULLs never collide, as with a SQL unique index
			continue
		}
		if excludeID != nil {
			filter = filter.Excluding(desc.PrimaryKey, excludeID)
		}
		_, exists, err := v.store.FindOne(ctx, desc.Entity, filter)
		if err != nil {
			return domain.StorageError("validate uniqueness", err)
		}
		if exists {
			return domain.ValidationError(MsgDuplicate)
		}
	}
	return nil
}

func referenceLabel(fk domain.ForeignKey) string {
	if fk.Label != "" {
		return fk.Label
	}
	return fmt.Sprintf("Associated entity(%s)", fk.References)
}

// inactive reports whether a referenced record carries a false activity flag.
// Targets without a declared flag fall back to an is_active column.
func inactive(target domain.Descriptor, rec domain.Record) bool {
	field := target.ActiveField
	if field == "" {
		field = "is_active"
	}
	active, ok := rec[field].(bool)
	return ok && !active
}
