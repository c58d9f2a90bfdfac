package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"
	_ "modernc.org/sqlite"

	"github.com/antonkk/formpilot/api/schemas"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS learned_entries (
	key        TEXT PRIMARY KEY,
	answer     TEXT NOT NULL,
	hint       TEXT,
	origin     TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL
);`

// SQLiteBackend persists learned entries in a local SQLite file. This is the
// default backend: zero-setup, single-operator.
type SQLiteBackend struct {
	db *sql.DB
}

var _ Backend = (*SQLiteBackend)(nil)

// NewSQLiteBackend opens (creating if needed) the database at path and
// ensures the schema exists.
func NewSQLiteBackend(ctx context.Context, path string) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	// The store has a single writer; more connections just contend.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) LoadAll(ctx context.Context) (map[string]schemas.LearnedEntry, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key, answer, hint, origin, updated_at FROM learned_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]schemas.LearnedEntry)
	for rows.Next() {
		var entry schemas.LearnedEntry
		var hint sql.NullString
		if err := rows.Scan(&entry.Key, &entry.Answer, &hint, &entry.Origin, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learned entry: %w", err)
		}
		if hint.Valid && hint.String != "" {
			var h schemas.StrategyHint
			if err := json.UnmarshalFromString(hint.String, &h); err == nil {
				entry.Hint = &h
			}
		}
		entries[entry.Key] = entry
	}
	return entries, rows.Err()
}

func (b *SQLiteBackend) Persist(ctx context.Context, entry schemas.LearnedEntry) error {
	var hint string
	if entry.Hint != nil {
		s, err := json.MarshalToString(entry.Hint)
		if err != nil {
			return fmt.Errorf("failed to encode strategy hint: %w", err)
		}
		hint = s
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO learned_entries (key, answer, hint, origin, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			answer = excluded.answer,
			hint = excluded.hint,
			origin = excluded.origin,
			updated_at = excluded.updated_at`,
		entry.Key, entry.Answer, hint, entry.Origin, entry.UpdatedAt)
	return err
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
