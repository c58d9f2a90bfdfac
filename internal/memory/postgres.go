package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	json "github.com/json-iterator/go"

	"github.com/antonkk/formpilot/api/schemas"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS learned_entries (
	key        TEXT PRIMARY KEY,
	answer     TEXT NOT NULL,
	hint       TEXT,
	origin     TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL
);`

// PgxIface is the slice of pgxpool.Pool the backend uses, split out so tests
// can substitute a mock pool.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Close()
}

// PostgresBackend persists learned entries in PostgreSQL, for operators
// sharing one memory across machines.
type PostgresBackend struct {
	pool PgxIface
}

var _ Backend = (*PostgresBackend)(nil)

// NewPostgresBackend connects to dsn and ensures the schema exists.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres store: %w", err)
	}
	backend := &PostgresBackend{pool: pool}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize postgres schema: %w", err)
	}
	return backend, nil
}

// NewPostgresBackendWithPool wraps an existing pool, mainly for tests.
func NewPostgresBackendWithPool(pool PgxIface) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

func (b *PostgresBackend) LoadAll(ctx context.Context) (map[string]schemas.LearnedEntry, error) {
	rows, err := b.pool.Query(ctx, `SELECT key, answer, hint, origin, updated_at FROM learned_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]schemas.LearnedEntry)
	for rows.Next() {
		var entry schemas.LearnedEntry
		var hint *string
		if err := rows.Scan(&entry.Key, &entry.Answer, &hint, &entry.Origin, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learned entry: %w", err)
		}
		if hint != nil && *hint != "" {
			var h schemas.StrategyHint
			if err := json.UnmarshalFromString(*hint, &h); err == nil {
				entry.Hint = &h
			}
		}
		entries[entry.Key] = entry
	}
	return entries, rows.Err()
}

func (b *PostgresBackend) Persist(ctx context.Context, entry schemas.LearnedEntry) error {
	var hint *string
	if entry.Hint != nil {
		s, err := json.MarshalToString(entry.Hint)
		if err != nil {
			return fmt.Errorf("failed to encode strategy hint: %w", err)
		}
		hint = &s
	}
	_, err := b.pool.Exec(ctx, `
		INSERT INTO learned_entries (key, answer, hint, origin, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			answer = EXCLUDED.answer,
			hint = EXCLUDED.hint,
			origin = EXCLUDED.origin,
			updated_at = EXCLUDED.updated_at`,
		entry.Key, entry.Answer, hint, entry.Origin, entry.UpdatedAt)
	return err
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
