package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository against a pgx connection pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ExecuteDDL runs all statements inside a single transaction. Postgres
// DDL is transactional, so a failure on any statement leaves the schema
// untouched.
func (r *PostgresRepository) ExecuteDDL(ctx context.Context, statements []string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) TableExists(ctx context.Context, schemaName, table string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		schemaName, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) ColumnExists(ctx context.Context, schemaName, table, column string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.columns
		 WHERE table_schema = $1 AND table_name = $2 AND column_name = $3)`,
		schemaName, table, column).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check column existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) IndexExists(ctx context.Context, schemaName, index string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE schemaname = $1 AND indexname = $2)`,
		schemaName, index).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check index existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) ConstraintExists(ctx context.Context, schemaName, constraint string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.table_constraints
		 WHERE constraint_schema = $1 AND constraint_name = $2)`,
		schemaName, constraint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check constraint existence: %w", err)
	}
	return exists, nil
}

// ForeignKeyDependents lists the tables whose foreign keys reference the
// given table.
func (r *PostgresRepository) ForeignKeyDependents(ctx context.Context, schemaName, table string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT tc.table_schema || '.' || tc.table_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.constraint_column_usage ccu
		   ON tc.constraint_name = ccu.constraint_name
		  AND tc.constraint_schema = ccu.constraint_schema
		 WHERE tc.constraint_type = 'FOREIGN KEY'
		   AND ccu.table_schema = $1
		   AND ccu.table_name = $2`,
		schemaName, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign key dependents: %w", err)
	}
	defer rows.Close()

	var dependents []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan dependent row: %w", err)
		}
		dependents = append(dependents, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dependent rows: %w", err)
	}
	return dependents, nil
}

func (r *PostgresRepository) RowCount(ctx context.Context, schemaName, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", quoteIdent(schemaName), quoteIdent(table))
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s.%s: %w", schemaName, table, err)
	}
	return count, nil
}
