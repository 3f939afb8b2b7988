package core

import (
	"context"
	"fmt"
	"os"

	"resourcechassis/internal/infra/persistence/memory"
	"resourcechassis/internal/infra/persistence/postgres"
	"resourcechassis/internal/infra/persistence/sqlite"
	"resourcechassis/internal/infra/persistence/sqlstore"
	"resourcechassis/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// PersistentStore is a record store that owns a releasable handle.
type PersistentStore interface {
	domain.Store
	Close() error
}

// OpenPersistentStore selects a backend using environment variables and
// creates the tables of every descriptor in catalog. Defaults to sqlite when
// unset.
//
//	CHASSIS_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	CHASSIS_SQLITE_PATH: path to sqlite file (default ./chassis.db)
//	CHASSIS_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(ctx context.Context, catalog sqlstore.Catalog) (PersistentStore, error) {
	driver := os.Getenv("CHASSIS_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(catalog), nil
	case StorageSQLite:
		return sqlite.NewStore(ctx, os.Getenv("CHASSIS_SQLITE_PATH"), catalog)
	case StoragePostgres:
		return postgres.NewStore(ctx, os.Getenv("CHASSIS_POSTGRES_DSN"), catalog)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
