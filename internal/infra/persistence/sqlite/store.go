// Package sqlite provides the SQLite-backed record store. Every descriptor of
// the catalog becomes a table; unique constraints become partial unique
// indexes over live rows.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"resourcechassis/internal/entitymodel/sqlbundle"
	"resourcechassis/internal/infra/persistence/sqlstore"
	"resourcechassis/pkg/domain"
)

var _ domain.Store = (*Store)(nil)

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "chassis.db"

// Dialect is the sqlstore dialect for modernc.org/sqlite.
var Dialect = sqlstore.Dialect{
	Name:              sqlbundle.DialectSQLite,
	Placeholder:       sq.Question,
	IsUniqueViolation: isUniqueViolation,
}

// Store persists records to a single SQLite database file.
type Store struct {
	*sqlstore.Store
	path string
}

// NewStore opens (creating when missing) the database at path and migrates
// every descriptor of catalog.
func NewStore(ctx context.Context, path string, catalog sqlstore.Catalog) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY and keeps
	// :memory: databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	s := &Store{Store: sqlstore.New(db, Dialect, catalog), path: path}
	if err := s.MigrateCatalog(ctx, catalog); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
