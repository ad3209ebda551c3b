// Package schema provides the narrow database surface the deprecation
// core needs: DDL executed inside a single transaction, and catalog
// metadata lookups. Everything above this package works against the
// Repository interface; only the Postgres implementation knows pgx.
package schema

import (
	"context"
	"fmt"
)

// Repository is the database boundary for the deprecation subsystem.
type Repository interface {
	// ExecuteDDL runs the statements inside one transaction. Either
	// all statements apply or none do.
	ExecuteDDL(ctx context.Context, statements []string) error

	// TableExists reports whether a table exists in the schema.
	TableExists(ctx context.Context, schemaName, table string) (bool, error)

	// ColumnExists reports whether a column exists on a table.
	ColumnExists(ctx context.Context, schemaName, table, column string) (bool, error)

	// IndexExists reports whether an index exists in the schema.
	IndexExists(ctx context.Context, schemaName, index string) (bool, error)

	// ConstraintExists reports whether a named constraint exists in the schema.
	ConstraintExists(ctx context.Context, schemaName, constraint string) (bool, error)

	// ForeignKeyDependents returns the tables holding foreign keys
	// that reference the given table.
	ForeignKeyDependents(ctx context.Context, schemaName, table string) ([]string, error)

	// RowCount returns the number of rows in a table.
	RowCount(ctx context.Context, schemaName, table string) (int64, error)
}

// RenameTableSQL builds the DDL to rename a table.
func RenameTableSQL(schemaName, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s.%s RENAME TO %s",
		quoteIdent(schemaName), quoteIdent(from), quoteIdent(to))
}

// RenameColumnSQL builds the DDL to rename a column.
func RenameColumnSQL(schemaName, table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s.%s RENAME COLUMN %s TO %s",
		quoteIdent(schemaName), quoteIdent(table), quoteIdent(from), quoteIdent(to))
}

// RenameIndexSQL builds the DDL to rename an index.
func RenameIndexSQL(schemaName, from, to string) string {
	return fmt.Sprintf("ALTER INDEX %s.%s RENAME TO %s",
		quoteIdent(schemaName), quoteIdent(from), quoteIdent(to))
}

// RenameConstraintSQL builds the DDL to rename a table constraint.
func RenameConstraintSQL(schemaName, table, from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s.%s RENAME CONSTRAINT %s TO %s",
		quoteIdent(schemaName), quoteIdent(table), quoteIdent(from), quoteIdent(to))
}

// quoteIdent double-quotes an identifier, escaping embedded quotes.
func quoteIdent(ident string) string {
	out := make([]byte, 0, len(ident)+2)
	out = append(out, '"')
	for i := 0; i < len(ident); i++ {
		if ident[i] == '"' {
			out = append(out, '"')
		}
		out = append(out, ident[i])
	}
	out = append(out, '"')
	return string(out)
}
