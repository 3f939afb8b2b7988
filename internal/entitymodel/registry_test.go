package entitymodel

import (
	"strings"
	"sync"
	"testing"

	"resourcechassis/pkg/domain"
)

func lookup() domain.Descriptor {
	return domain.Descriptor{
		Entity:     "lookup",
		PrimaryKey: "id",
		Fields: []domain.Field{
			{Name: "id", Type: domain.FieldInteger},
			{Name: "code", Type: domain.FieldText},
		},
	}
}

func referrer() domain.Descriptor {
	return domain.Descriptor{
		Entity:     "referrer",
		PrimaryKey: "id",
		Fields: []domain.Field{
			{Name: "id", Type: domain.FieldInteger},
			{Name: "lookup_id", Type: domain.FieldInteger},
		},
		ForeignKeys: []domain.ForeignKey{{Field: "lookup_id", References: "lookup", ReferencedField: "id"}},
	}
}

func TestRegisterRejectsInvalidAndDuplicates(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(domain.Descriptor{Entity: "broken"}); err == nil {
		t.Fatalf("expected invalid descriptor to be rejected")
	}
	if err := reg.Register(lookup()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(lookup()); err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestSealChecksForeignKeyTargets(t *testing.T) {
	reg := NewRegistry().MustRegister(referrer())
	if err := reg.Seal(); err == nil {
		t.Fatalf("expected unregistered target to fail sealing")
	}
	if reg.Sealed() {
		t.Fatalf("failed seal must leave registry open")
	}
	if err := reg.Register(lookup()); err != nil {
		t.Fatalf("register lookup: %v", err)
	}
	if err := reg.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}
	if err := reg.Seal(); err != nil {
		t.Fatalf("second seal should be a no-op: %v", err)
	}
	if err := reg.Register(domain.Descriptor{Entity: "late", PrimaryKey: "id", Fields: []domain.Field{{Name: "id", Type: domain.FieldText}}}); err == nil {
		t.Fatalf("expected sealed registry to refuse registration")
	}
}

func TestSealChecksReferencedField(t *testing.T) {
	bad := referrer()
	bad.ForeignKeys[0].ReferencedField = "missing"
	reg := NewRegistry().MustRegister(lookup(), bad)
	if err := reg.Seal(); err == nil {
		t.Fatalf("expected undeclared referenced field to fail")
	}
}

func TestDescriptorsAreCopies(t *testing.T) {
	src := lookup()
	reg := NewRegistry().MustRegister(src)
	src.Fields[1].Name = "mutated"

	got, ok := reg.Descriptor("lookup")
	if !ok {
		t.Fatalf("lookup not registered")
	}
	if got.Fields[1].Name != "code" {
		t.Fatalf("registry shares caller slice")
	}
	got.Fields[1].Name = "mutated"
	again, _ := reg.Descriptor("lookup")
	if again.Fields[1].Name != "code" {
		t.Fatalf("registry hands out shared slices")
	}
	if _, ok := reg.Descriptor("nope"); ok {
		t.Fatalf("unexpected descriptor")
	}
}

func TestDescriptorsPreserveOrderUnderConcurrentReads(t *testing.T) {
	reg := NewRegistry().MustRegister(lookup(), referrer())
	if err := reg.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			all := reg.Descriptors()
			if len(all) != 2 || all[0].Entity != "lookup" || all[1].Entity != "referrer" {
				t.Errorf("unexpected descriptors %v", all)
			}
		}()
	}
	wg.Wait()
}

func TestMustRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	NewRegistry().MustRegister(domain.Descriptor{})
}
