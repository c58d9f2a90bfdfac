package memory

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonkk/formpilot/api/schemas"
)

// flexibleSQLMatcher builds a whitespace-insensitive regex for SQL mocks.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

const sqlUpsertEntry = `
	INSERT INTO learned_entries (key, answer, hint, origin, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (key) DO UPDATE SET
		answer = EXCLUDED.answer,
		hint = EXCLUDED.hint,
		origin = EXCLUDED.origin,
		updated_at = EXCLUDED.updated_at`

func TestPostgresBackendPersist(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	backend := NewPostgresBackendWithPool(mockPool)
	now := time.Now().UTC()

	mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertEntry)).
		WithArgs("graduation year", "2023", pgxmock.AnyArg(), "repair", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry := schemas.LearnedEntry{
		Key:       "graduation year",
		Answer:    "2023",
		Hint:      &schemas.StrategyHint{FallbackOption: "2024"},
		Origin:    "repair",
		UpdatedAt: now,
	}
	require.NoError(t, backend.Persist(context.Background(), entry))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresBackendLoadAll(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	backend := NewPostgresBackendWithPool(mockPool)
	now := time.Now().UTC()
	hintJSON := `{"async_wait":true}`

	columns := []string{"key", "answer", "hint", "origin", "updated_at"}
	rows := pgxmock.NewRows(columns).
		AddRow("first name", "Anton", (*string)(nil), "human", now).
		AddRow("current location", "Berlin, Germany", &hintJSON, "ai", now)

	mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT key, answer, hint, origin, updated_at FROM learned_entries`)).
		WillReturnRows(rows)

	entries, err := backend.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Anton", entries["first name"].Answer)
	assert.Nil(t, entries["first name"].Hint)

	loc := entries["current location"]
	require.NotNil(t, loc.Hint)
	assert.True(t, loc.Hint.AsyncWait)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
