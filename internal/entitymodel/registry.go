// Package entitymodel holds the descriptor registry shared by the pipeline and
// the stores. Descriptors are validated and copied on registration and only
// copies are handed out, so registered metadata cannot change underneath a
// running request.
package entitymodel

import (
	"fmt"
	"sync"

	"resourcechassis/pkg/domain"
)

var _ domain.DescriptorSource = (*Registry)(nil)

// Registry indexes descriptors by entity.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[domain.EntityType]domain.Descriptor
	order       []domain.EntityType
	sealed      bool
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[domain.EntityType]domain.Descriptor)}
}

// Register validates and stores a descriptor. Each entity registers once.
func (r *Registry) Register(d domain.Descriptor) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("register descriptor: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("register %s: registry sealed", d.Entity)
	}
	if _, exists := r.descriptors[d.Entity]; exists {
		return fmt.Errorf("register %s: already registered", d.Entity)
	}
	r.descriptors[d.Entity] = d.Clone()
	r.order = append(r.order, d.Entity)
	return nil
}

// MustRegister panics on registration failure. Intended for static bootstrap code.
func (r *Registry) MustRegister(descs ...domain.Descriptor) *Registry {
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Seal verifies cross-descriptor references and closes the registry to
// further registration. Sealing twice is a no-op.
func (r *Registry) Seal() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return nil
	}
	for _, entity := range r.order {
		d := r.descriptors[entity]
		for _, fk := range d.ForeignKeys {
			target, ok := r.descriptors[fk.References]
			if !ok {
				return fmt.Errorf("%s.%s references unregistered entity %q", entity, fk.Field, fk.References)
			}
			if _, ok := target.Field(fk.ReferencedField); !ok {
				return fmt.Errorf("%s.%s references undeclared field %s.%s", entity, fk.Field, fk.References, fk.ReferencedField)
			}
		}
	}
	r.sealed = true
	return nil
}

// Sealed reports whether Seal succeeded.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Descriptor returns a copy of the descriptor registered for entity.
func (r *Registry) Descriptor(entity domain.EntityType) (domain.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[entity]
	if !ok {
		return domain.Descriptor{}, false
	}
	return d.Clone(), true
}

// Descriptors returns copies of every descriptor in registration order.
func (r *Registry) Descriptors() []domain.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Descriptor, 0, len(r.order))
	for _, entity := range r.order {
		out = append(out, r.descriptors[entity].Clone())
	}
	return out
}
