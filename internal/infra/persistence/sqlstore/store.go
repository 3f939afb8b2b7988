// Package sqlstore implements domain.Store over database/sql for the sqlite
// and postgres adapters. Queries are built with squirrel and rows are scanned
// with sqlx; each store call is a single statement.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"resourcechassis/internal/entitymodel/sqlbundle"
	"resourcechassis/pkg/domain"
)

var _ domain.Store = (*Store)(nil)

// Dialect captures what differs between the SQL backends.
type Dialect struct {
	Name        sqlbundle.Dialect
	Placeholder sq.PlaceholderFormat
	// IsUniqueViolation classifies driver errors raised by unique indexes.
	IsUniqueViolation func(error) bool
}

// Catalog is a descriptor source that can enumerate every registered
// descriptor, which is what migrations need.
type Catalog interface {
	domain.DescriptorSource
	Descriptors() []domain.Descriptor
}

// Store executes record operations against one database.
type Store struct {
	db          *sqlx.DB
	dialect     Dialect
	builder     sq.StatementBuilderType
	descriptors domain.DescriptorSource
}

// New wraps db. descriptors supplies table shapes.
func New(db *sqlx.DB, dialect Dialect, descriptors domain.DescriptorSource) *Store {
	return &Store{
		db:          db,
		dialect:     dialect,
		builder:     sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
		descriptors: descriptors,
	}
}

// DB exposes the underlying handle for integration testing hooks.
func (s *Store) DB() *sqlx.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the tables and unique indexes of descs when missing.
func (s *Store) Migrate(ctx context.Context, descs ...domain.Descriptor) error {
	return ApplyDDL(ctx, s.db, sqlbundle.Render(s.dialect.Name, descs...))
}

// MigrateCatalog creates the tables of every descriptor in catalog.
func (s *Store) MigrateCatalog(ctx context.Context, catalog Catalog) error {
	return s.Migrate(ctx, catalog.Descriptors()...)
}

// Execer is satisfied by *sql.DB, *sqlx.DB and transactions.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ApplyDDL executes every statement of a DDL script in order.
func ApplyDDL(ctx context.Context, db Execer, ddl string) error {
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func (s *Store) descriptor(entity domain.EntityType) (domain.Descriptor, error) {
	d, ok := s.descriptors.Descriptor(entity)
	if !ok {
		return domain.Descriptor{}, fmt.Errorf("sql store: entity %q not registered", entity)
	}
	return d, nil
}

func columns(d domain.Descriptor) []string {
	cols := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		cols[i] = sqlbundle.Quote(f.Name)
	}
	return cols
}

func (s *Store) where(d domain.Descriptor, filter domain.Filter) (sq.And, error) {
	var conds sq.And
	for _, name := range sortedKeys(filter.Equal) {
		v, err := s.encodeField(d, name, filter.Equal[name])
		if err != nil {
			return nil, err
		}
		conds = append(conds, sq.Eq{sqlbundle.Quote(name): v})
	}
	for _, name := range sortedKeys(filter.NotEqual) {
		v, err := s.encodeField(d, name, filter.NotEqual[name])
		if err != nil {
			return nil, err
		}
		conds = append(conds, sq.NotEq{sqlbundle.Quote(name): v})
	}
	return conds, nil
}

// FindOne returns the first matching row by primary key order.
func (s *Store) FindOne(ctx context.Context, entity domain.EntityType, filter domain.Filter) (domain.Record, bool, error) {
	d, err := s.descriptor(entity)
	if err != nil {
		return nil, false, err
	}
	conds, err := s.where(d, filter)
	if err != nil {
		return nil, false, err
	}
	query, args, err := s.builder.Select(columns(d)...).
		From(sqlbundle.Quote(string(entity))).
		Where(conds).
		OrderBy(sqlbundle.Quote(d.PrimaryKey)).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build find query: %w", err)
	}
	row := make(map[string]any, len(d.Fields))
	if err := s.db.QueryRowxContext(ctx, query, args...).MapScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find %s: %w", entity, err)
	}
	rec, err := decodeRow(d, row)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// FindMany counts the matching rows and returns the requested page.
func (s *Store) FindMany(ctx context.Context, entity domain.EntityType, filter domain.Filter, order *domain.Order, page *domain.PageRequest) (domain.PagedResult[domain.Record], error) {
	var empty domain.PagedResult[domain.Record]
	d, err := s.descriptor(entity)
	if err != nil {
		return empty, err
	}
	conds, err := s.where(d, filter)
	if err != nil {
		return empty, err
	}
	table := sqlbundle.Quote(string(entity))

	countQuery, countArgs, err := s.builder.Select("COUNT(*)").From(table).Where(conds).ToSql()
	if err != nil {
		return empty, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := s.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return empty, fmt.Errorf("count %s: %w", entity, err)
	}

	q := s.builder.Select(columns(d)...).From(table).Where(conds)
	if order != nil {
		if _, ok := d.Field(order.Field); !ok {
			return empty, fmt.Errorf("order %s: unknown column %q", entity, order.Field)
		}
		dir := " ASC"
		if order.Descending {
			dir = " DESC"
		}
		q = q.OrderBy(sqlbundle.Quote(order.Field) + dir)
	}
	q = q.OrderBy(sqlbundle.Quote(d.PrimaryKey) + " ASC")
	req := domain.PageRequest{Number: 1, Size: total}
	if page != nil {
		req = *page
		q = q.Limit(uint64(req.Size)).Offset(uint64(req.Offset()))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return empty, fmt.Errorf("build list query: %w", err)
	}
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return empty, fmt.Errorf("list %s: %w", entity, err)
	}
	defer func() { _ = rows.Close() }()
	var results []domain.Record
	for rows.Next() {
		row := make(map[string]any, len(d.Fields))
		if err := rows.MapScan(row); err != nil {
			return empty, fmt.Errorf("scan %s: %w", entity, err)
		}
		rec, err := decodeRow(d, row)
		if err != nil {
			return empty, err
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return empty, fmt.Errorf("iterate %s: %w", entity, err)
	}
	return domain.NewPagedResult(results, total, req), nil
}

// Insert writes record and returns the stored row. Integer keys are left to
// the database; uuid and text keys are generated when absent.
func (s *Store) Insert(ctx context.Context, entity domain.EntityType, record domain.Record) (domain.Record, error) {
	d, err := s.descriptor(entity)
	if err != nil {
		return nil, err
	}
	rec := record.Clone()
	if rec == nil {
		rec = domain.Record{}
	}
	if id, ok := rec[d.PrimaryKey]; !ok || id == nil {
		delete(rec, d.PrimaryKey)
		if d.PrimaryKeyField().Type != domain.FieldInteger {
			rec[d.PrimaryKey] = uuid.NewString()
		}
	}
	names := rec.Keys()
	cols := make([]string, 0, len(names))
	vals := make([]any, 0, len(names))
	for _, name := range names {
		v, err := s.encodeField(d, name, rec[name])
		if err != nil {
			return nil, err
		}
		cols = append(cols, sqlbundle.Quote(name))
		vals = append(vals, v)
	}
	table := sqlbundle.Quote(string(entity))
	returning := "RETURNING " + strings.Join(columns(d), ", ")
	var query string
	var args []any
	if len(cols) == 0 {
		query = "INSERT INTO " + table + " DEFAULT VALUES " + returning
	} else {
		query, args, err = s.builder.Insert(table).Columns(cols...).Values(vals...).Suffix(returning).ToSql()
		if err != nil {
			return nil, fmt.Errorf("build insert: %w", err)
		}
	}
	row := make(map[string]any, len(d.Fields))
	if err := s.db.QueryRowxContext(ctx, query, args...).MapScan(row); err != nil {
		if s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err) {
			return nil, domain.ConflictError("Similar record already exists")
		}
		return nil, fmt.Errorf("insert %s: %w", entity, err)
	}
	return decodeRow(d, row)
}

// ApplyFieldUpdate overwrites fields on the row id.
func (s *Store) ApplyFieldUpdate(ctx context.Context, entity domain.EntityType, id any, fields domain.Record) error {
	d, err := s.descriptor(entity)
	if err != nil {
		return err
	}
	pk, err := s.encodeField(d, d.PrimaryKey, id)
	if err != nil {
		return err
	}
	q := s.builder.Update(sqlbundle.Quote(string(entity))).Where(sq.Eq{sqlbundle.Quote(d.PrimaryKey): pk})
	set := 0
	for _, name := range fields.Keys() {
		if name == d.PrimaryKey {
			continue
		}
		v, err := s.encodeField(d, name, fields[name])
		if err != nil {
			return err
		}
		q = q.Set(sqlbundle.Quote(name), v)
		set++
	}
	if set == 0 {
		_, found, err := s.FindOne(ctx, entity, domain.Filter{}.With(d.PrimaryKey, id))
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound("Record doesn't exist")
		}
		return nil
	}
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err) {
			return domain.ConflictError("Similar record already exists")
		}
		return fmt.Errorf("update %s: %w", entity, err)
	}
	return requireAffected(res)
}

// Remove deletes the row id.
func (s *Store) Remove(ctx context.Context, entity domain.EntityType, id any) error {
	d, err := s.descriptor(entity)
	if err != nil {
		return err
	}
	pk, err := s.encodeField(d, d.PrimaryKey, id)
	if err != nil {
		return err
	}
	query, args, err := s.builder.Delete(sqlbundle.Quote(string(entity))).
		Where(sq.Eq{sqlbundle.Quote(d.PrimaryKey): pk}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", entity, err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.NotFound("Record doesn't exist")
	}
	return nil
}
