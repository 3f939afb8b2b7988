package domain

import "context"

// Store is the record store consumed by the chassis. Implementations must
// support equality filtering on arbitrary declared fields and provide
// read-your-writes consistency within a request. Every method is atomic.
type Store interface {
	FindOne(ctx context.Context, entity EntityType, filter Filter) (Record, bool, error)
	FindMany(ctx context.Context, entity EntityType, filter Filter, order *Order, page *PageRequest) (PagedResult[Record], error)
	Insert(ctx context.Context, entity EntityType, record Record) (Record, error)
	// ApplyFieldUpdate overwrites the given fields of the record with primary
	// key id. It returns a NotFound coded error when no row matches.
	ApplyFieldUpdate(ctx context.Context, entity EntityType, id any, fields Record) error
	// Remove deletes the row outright, returning NotFound when absent.
	Remove(ctx context.Context, entity EntityType, id any) error
}

// DescriptorSource resolves registered descriptors. Stores use it to learn
// primary keys and column types.
type DescriptorSource interface {
	Descriptor(entity EntityType) (Descriptor, bool)
}
