// Package domain defines the record descriptors, value types, collaborator
// interfaces and error taxonomy shared by the resource chassis.
package domain

import (
	"fmt"
	"strings"
)

// EntityType identifies a record type; it doubles as the store bucket or table name.
type EntityType string

// FieldType enumerates the value kinds a descriptor field may hold.
type FieldType string

// Supported field types. Values are normalised to int64, float64, string, bool,
// time.Time and canonical uuid strings respectively.
const (
	FieldInteger   FieldType = "integer"
	FieldFloat     FieldType = "float"
	FieldText      FieldType = "text"
	FieldBoolean   FieldType = "boolean"
	FieldTimestamp FieldType = "timestamp"
	FieldUUID      FieldType = "uuid"
)

// DefaultRecordName labels records when a descriptor does not name them.
const DefaultRecordName = "Resource"

// Field declares one column of a record type.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	// ReadOnly fields are maintained by the chassis and rejected in payloads.
	ReadOnly bool `json:"read_only,omitempty"`
}

// ForeignKey declares a reference from Field to ReferencedField of another entity.
type ForeignKey struct {
	Field           string     `json:"field"`
	References      EntityType `json:"references"`
	ReferencedField string     `json:"referenced_field"`
	// Label is the human readable name used in validation messages.
	Label string `json:"label,omitempty"`
}

// UniqueConstraint declares a group of fields that must be unique among live records.
type UniqueConstraint struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// Descriptor is the static metadata describing a record type. Descriptors are
// registered once and never mutated afterwards.
type Descriptor struct {
	Entity            EntityType         `json:"entity"`
	RecordName        string             `json:"record_name,omitempty"`
	PrimaryKey        string             `json:"primary_key"`
	Fields            []Field            `json:"fields"`
	SoftDeleteField   string             `json:"soft_delete_field,omitempty"`
	ActiveField       string             `json:"active_field,omitempty"`
	ForeignKeys       []ForeignKey       `json:"foreign_keys,omitempty"`
	UniqueConstraints []UniqueConstraint `json:"unique_constraints,omitempty"`
	OwnershipField    string             `json:"ownership_field,omitempty"`
	CreatedAtField    string             `json:"created_at_field,omitempty"`
	UpdatedAtField    string             `json:"updated_at_field,omitempty"`
}

// Name returns the record label used in logs and messages.
func (d Descriptor) Name() string {
	if strings.TrimSpace(d.RecordName) == "" {
		return DefaultRecordName
	}
	return d.RecordName
}

// HasSoftDelete reports whether deletes flag records instead of removing them.
func (d Descriptor) HasSoftDelete() bool { return d.SoftDeleteField != "" }

// Field looks up a declared field by name.
func (d Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// PrimaryKeyField returns the declaration of the primary key.
func (d Descriptor) PrimaryKeyField() Field {
	f, _ := d.Field(d.PrimaryKey)
	return f
}

// ColumnNames lists declared field names in declaration order.
func (d Descriptor) ColumnNames() []string {
	out := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = f.Name
	}
	return out
}

// LiveFilter returns the predicate every read and validation path applies.
// Descriptors without a soft-delete field treat every stored record as live.
func (d Descriptor) LiveFilter() Filter {
	f := Filter{}
	if d.HasSoftDelete() {
		f.Equal = map[string]any{d.SoftDeleteField: false}
	}
	return f
}

// ByID returns the live filter narrowed to a single primary key.
func (d Descriptor) ByID(id any) Filter {
	return d.LiveFilter().With(d.PrimaryKey, id)
}

// Managed reports whether the chassis owns the field's value, which makes it
// unsettable through payloads.
func (d Descriptor) Managed(name string) bool {
	switch name {
	case d.PrimaryKey, d.SoftDeleteField, d.CreatedAtField, d.UpdatedAtField:
		return name != ""
	}
	f, ok := d.Field(name)
	return ok && f.ReadOnly
}

// Clone returns a deep copy so registries can hand out descriptors without
// exposing shared slices.
func (d Descriptor) Clone() Descriptor {
	cp := d
	cp.Fields = append([]Field(nil), d.Fields...)
	cp.ForeignKeys = append([]ForeignKey(nil), d.ForeignKeys...)
	cp.UniqueConstraints = make([]UniqueConstraint, len(d.UniqueConstraints))
	for i, uc := range d.UniqueConstraints {
		cp.UniqueConstraints[i] = UniqueConstraint{Name: uc.Name, Fields: append([]string(nil), uc.Fields...)}
	}
	if d.UniqueConstraints == nil {
		cp.UniqueConstraints = nil
	}
	return cp
}

// Validate checks the descriptor is internally consistent. Cross-descriptor
// checks (foreign key targets) are performed by the registry.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(string(d.Entity)) == "" {
		return fmt.Errorf("descriptor entity required")
	}
	seen := make(map[string]struct{}, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" {
			return fmt.Errorf("%s: field name required", d.Entity)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%s: duplicate field %q", d.Entity, f.Name)
		}
		seen[f.Name] = struct{}{}
		switch f.Type {
		case FieldInteger, FieldFloat, FieldText, FieldBoolean, FieldTimestamp, FieldUUID:
		default:
			return fmt.Errorf("%s: field %q has unsupported type %q", d.Entity, f.Name, f.Type)
		}
	}
	pk, ok := d.Field(d.PrimaryKey)
	if !ok {
		return fmt.Errorf("%s: primary key %q not declared", d.Entity, d.PrimaryKey)
	}
	switch pk.Type {
	case FieldInteger, FieldText, FieldUUID:
	default:
		return fmt.Errorf("%s: primary key %q must be integer, text or uuid", d.Entity, d.PrimaryKey)
	}
	for _, name := range []string{d.SoftDeleteField, d.ActiveField} {
		if name == "" {
			continue
		}
		if f, ok := d.Field(name); !ok || f.Type != FieldBoolean {
			return fmt.Errorf("%s: flag field %q must be a declared boolean", d.Entity, name)
		}
	}
	for _, name := range []string{d.CreatedAtField, d.UpdatedAtField} {
		if name == "" {
			continue
		}
		if f, ok := d.Field(name); !ok || f.Type != FieldTimestamp {
			return fmt.Errorf("%s: timestamp field %q must be a declared timestamp", d.Entity, name)
		}
	}
	if d.OwnershipField != "" {
		if _, ok := d.Field(d.OwnershipField); !ok {
			return fmt.Errorf("%s: ownership field %q not declared", d.Entity, d.OwnershipField)
		}
	}
	for _, fk := range d.ForeignKeys {
		if _, ok := d.Field(fk.Field); !ok {
			return fmt.Errorf("%s: foreign key field %q not declared", d.Entity, fk.Field)
		}
		if fk.References == "" || fk.ReferencedField == "" {
			return fmt.Errorf("%s: foreign key %q requires a referenced entity and field", d.Entity, fk.Field)
		}
	}
	for _, uc := range d.UniqueConstraints {
		if len(uc.Fields) == 0 {
			return fmt.Errorf("%s: unique constraint %q has no fields", d.Entity, uc.Name)
		}
		for _, name := range uc.Fields {
			if _, ok := d.Field(name); !ok {
				return fmt.Errorf("%s: unique constraint %q references undeclared field %q", d.Entity, uc.Name, name)
			}
		}
	}
	return nil
}
