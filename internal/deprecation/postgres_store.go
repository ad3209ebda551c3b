package deprecation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists migration records in a schemaguard_migrations
// table, so records survive process restarts.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the migration record table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schemaguard_migrations (
			id            TEXT PRIMARY KEY,
			phase         TEXT NOT NULL,
			elements      JSONB NOT NULL,
			safety_checks JSONB NOT NULL,
			metadata      JSONB NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, m *Migration) error {
	elements, checks, metadata, err := marshalMigration(m)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO schemaguard_migrations (id, phase, elements, safety_checks, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, string(m.Phase), elements, checks, metadata, m.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save migration %s: %w", m.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Migration, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, phase, elements, safety_checks, metadata, created_at
		 FROM schemaguard_migrations WHERE id = $1`, id)

	m, err := scanMigration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{MigrationID: id}
		}
		return nil, fmt.Errorf("failed to load migration %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) Update(ctx context.Context, m *Migration) error {
	elements, checks, metadata, err := marshalMigration(m)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE schemaguard_migrations
		 SET phase = $2, elements = $3, safety_checks = $4, metadata = $5
		 WHERE id = $1`,
		m.ID, string(m.Phase), elements, checks, metadata)
	if err != nil {
		return fmt.Errorf("failed to update migration %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{MigrationID: m.ID}
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Migration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, phase, elements, safety_checks, metadata, created_at
		 FROM schemaguard_migrations ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer rows.Close()

	var out []*Migration
	for rows.Next() {
		m, err := scanMigration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read migration rows: %w", err)
	}
	return out, nil
}

func marshalMigration(m *Migration) (elements, checks, metadata []byte, err error) {
	if elements, err = json.Marshal(m.Elements); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal elements: %w", err)
	}
	if checks, err = json.Marshal(m.SafetyChecks); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal safety checks: %w", err)
	}
	if metadata, err = json.Marshal(m.Metadata); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return elements, checks, metadata, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMigration(row rowScanner) (*Migration, error) {
	var (
		m        Migration
		phase    string
		elements []byte
		checks   []byte
		metadata []byte
	)
	if err := row.Scan(&m.ID, &phase, &elements, &checks, &metadata, &m.Timestamp); err != nil {
		return nil, err
	}
	m.Phase = Phase(phase)
	if err := json.Unmarshal(elements, &m.Elements); err != nil {
		return nil, fmt.Errorf("failed to unmarshal elements: %w", err)
	}
	if err := json.Unmarshal(checks, &m.SafetyChecks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal safety checks: %w", err)
	}
	if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &m, nil
}
