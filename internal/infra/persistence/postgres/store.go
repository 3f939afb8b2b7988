// Package postgres provides the Postgres-backed record store. It shares the
// statement builder with the sqlite adapter and applies the descriptor DDL on
// startup.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/jmoiron/sqlx"

	"resourcechassis/internal/entitymodel/sqlbundle"
	"resourcechassis/internal/infra/persistence/sqlstore"
	"resourcechassis/pkg/domain"
)

var _ domain.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/chassis?sslmode=disable"

	uniqueViolation = "23505"
)

// Dialect is the sqlstore dialect for pgx.
var Dialect = sqlstore.Dialect{
	Name:              sqlbundle.DialectPostgres,
	Placeholder:       sq.Dollar,
	IsUniqueViolation: isUniqueViolation,
}

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists records to Postgres tables.
type Store struct {
	*sqlstore.Store
}

// NewStore opens a Postgres-backed store using dsn (falls back to defaultDSN)
// and applies the DDL of every descriptor in catalog.
func NewStore(ctx context.Context, dsn string, catalog sqlstore.Catalog) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{Store: sqlstore.New(sqlx.NewDb(db, defaultDriver), Dialect, catalog)}
	if err := s.MigrateCatalog(ctx, catalog); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
