// Package demo declares the sample catalog served by chassisd: people that
// reference a gender lookup table, plus a hard-deleted tag resource.
package demo

import (
	"resourcechassis/internal/entitymodel"
	"resourcechassis/pkg/domain"
)

// Entity names.
const (
	EntityGender domain.EntityType = "gender"
	EntityPerson domain.EntityType = "person"
	EntityTag    domain.EntityType = "tag"
)

// Gender is a soft-deleted lookup table whose rows can be deactivated.
func Gender() domain.Descriptor {
	return domain.Descriptor{
		Entity:     EntityGender,
		RecordName: "Gender",
		PrimaryKey: "id",
		Fields: []domain.Field{
			{Name: "id", Type: domain.FieldInteger},
			{Name: "name", Type: domain.FieldText, Required: true},
			{Name: "is_active", Type: domain.FieldBoolean},
			{Name: "is_deleted", Type: domain.FieldBoolean},
			{Name: "created_at", Type: domain.FieldTimestamp},
		},
		SoftDeleteField:   "is_deleted",
		ActiveField:       "is_active",
		CreatedAtField:    "created_at",
		UniqueConstraints: []domain.UniqueConstraint{{Name: "name", Fields: []string{"name"}}},
	}
}

// Person references Gender and is unique by national id among live rows.
func Person() domain.Descriptor {
	return domain.Descriptor{
		Entity:     EntityPerson,
		RecordName: "Person",
		PrimaryKey: "id",
		Fields: []domain.Field{
			{Name: "id", Type: domain.FieldInteger},
			{Name: "full_name", Type: domain.FieldText, Required: true},
			{Name: "national_id", Type: domain.FieldText, Required: true},
			{Name: "age", Type: domain.FieldInteger},
			{Name: "gender_id", Type: domain.FieldInteger, Required: true},
			{Name: "created_by", Type: domain.FieldText},
			{Name: "created_at", Type: domain.FieldTimestamp},
			{Name: "updated_at", Type: domain.FieldTimestamp},
			{Name: "is_deleted", Type: domain.FieldBoolean},
		},
		SoftDeleteField: "is_deleted",
		OwnershipField:  "created_by",
		CreatedAtField:  "created_at",
		UpdatedAtField:  "updated_at",
		ForeignKeys: []domain.ForeignKey{
			{Field: "gender_id", References: EntityGender, ReferencedField: "id", Label: "Gender"},
		},
		UniqueConstraints: []domain.UniqueConstraint{{Name: "national_id", Fields: []string{"national_id"}}},
	}
}

// Tag has no soft-delete flag, so deletes remove the row.
func Tag() domain.Descriptor {
	return domain.Descriptor{
		Entity:     EntityTag,
		PrimaryKey: "id",
		Fields: []domain.Field{
			{Name: "id", Type: domain.FieldUUID},
			{Name: "label", Type: domain.FieldText, Required: true},
			{Name: "weight", Type: domain.FieldFloat},
		},
		UniqueConstraints: []domain.UniqueConstraint{{Fields: []string{"label"}}},
	}
}

// Registry returns a sealed registry holding the demo catalog.
func Registry() (*entitymodel.Registry, error) {
	reg := entitymodel.NewRegistry()
	for _, d := range []domain.Descriptor{Gender(), Person(), Tag()} {
		if err := reg.Register(d); err != nil {
			return nil, err
		}
	}
	if err := reg.Seal(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Genders are the lookup rows seeded at startup. Male is inactive so the
// inactive-reference path can be exercised.
func Genders() []domain.Record {
	return []domain.Record{
		{"name": "Male", "is_active": false},
		{"name": "Female", "is_active": true},
	}
}
