// Package sqlbundle renders descriptor DDL bundles for the SQL adapters.
package sqlbundle

import (
	"bufio"
	"fmt"
	"strings"

	"resourcechassis/pkg/domain"
)

// Dialect selects the SQL flavour of a bundle.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLite returns the SQLite DDL for the descriptors.
func SQLite(descs ...domain.Descriptor) string {
	return Render(DialectSQLite, descs...)
}

// Postgres returns the Postgres DDL for the descriptors.
func Postgres(descs ...domain.Descriptor) string {
	return Render(DialectPostgres, descs...)
}

// Render emits one CREATE TABLE per descriptor followed by its unique
// indexes. Unique indexes are partial over live rows when the descriptor
// soft-deletes, which keeps the store authoritative for the same rule the
// validator checks.
func Render(dialect Dialect, descs ...domain.Descriptor) string {
	var b strings.Builder
	for _, d := range descs {
		fmt.Fprintf(&b, "-- %s\n", d.Name())
		fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", Quote(string(d.Entity)))
		for i, f := range d.Fields {
			b.WriteString("    ")
			b.WriteString(columnDefinition(dialect, d, f))
			if i < len(d.Fields)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(");\n")
		for _, uc := range d.UniqueConstraints {
			cols := make([]string, len(uc.Fields))
			for i, name := range uc.Fields {
				cols[i] = Quote(name)
			}
			fmt.Fprintf(&b, "CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
				Quote(IndexName(d, uc)), Quote(string(d.Entity)), strings.Join(cols, ", "))
			if d.HasSoftDelete() {
				fmt.Fprintf(&b, " WHERE %s = %s", Quote(d.SoftDeleteField), BoolLiteral(dialect, false))
			}
			b.WriteString(";\n")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// IndexName returns the unique index name for a constraint group.
func IndexName(d domain.Descriptor, uc domain.UniqueConstraint) string {
	name := uc.Name
	if name == "" {
		name = strings.Join(uc.Fields, "_")
	}
	return fmt.Sprintf("uq_%s_%s", d.Entity, name)
}

// Quote double-quotes an identifier; both dialects accept the ANSI form.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// BoolLiteral renders a boolean constant in the dialect's storage form.
func BoolLiteral(dialect Dialect, v bool) string {
	if dialect == DialectSQLite {
		if v {
			return "1"
		}
		return "0"
	}
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func columnDefinition(dialect Dialect, d domain.Descriptor, f domain.Field) string {
	col := Quote(f.Name) + " " + columnType(dialect, f.Type)
	if f.Name == d.PrimaryKey {
		if f.Type == domain.FieldInteger {
			if dialect == DialectSQLite {
				return Quote(f.Name) + " INTEGER PRIMARY KEY AUTOINCREMENT"
			}
			return Quote(f.Name) + " BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
		}
		return col + " PRIMARY KEY"
	}
	if f.Name == d.SoftDeleteField {
		return col + " NOT NULL DEFAULT " + BoolLiteral(dialect, false)
	}
	if f.Required {
		col += " NOT NULL"
	}
	return col
}

func columnType(dialect Dialect, t domain.FieldType) string {
	switch t {
	case domain.FieldInteger:
		if dialect == DialectSQLite {
			return "INTEGER"
		}
		return "BIGINT"
	case domain.FieldFloat:
		if dialect == DialectSQLite {
			return "REAL"
		}
		return "DOUBLE PRECISION"
	case domain.FieldBoolean:
		if dialect == DialectSQLite {
			return "INTEGER"
		}
		return "BOOLEAN"
	case domain.FieldTimestamp:
		if dialect == DialectSQLite {
			// stored as RFC 3339 text
			return "TEXT"
		}
		return "TIMESTAMPTZ"
	}
	return "TEXT"
}

// SplitStatements splits a semicolon-terminated DDL script into executable statements.
// It drops blank lines and single-line comments that start with "--".
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}

	return stmts
}
