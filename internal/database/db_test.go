package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maptitesalle/mylittlegymcoach/internal/logger"
)

func TestNewDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "coach.db")

	db, err := NewDB(path, logger.NewNop())
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"generated_content", "nutrition_plans", "execution_metrics"} {
		var name string
		err := db.SQL.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}

	t.Run("MigrationsAreIdempotent", func(t *testing.T) {
		again, err := NewDB(path, logger.NewNop())
		require.NoError(t, err)
		again.Close()
	})
}

func TestRebind(t *testing.T) {
	query := `UPDATE t SET a = ? WHERE b = ? AND c = ?`

	sqlite := &DB{Dialect: SQLite}
	assert.Equal(t, query, sqlite.Rebind(query))

	pg := &DB{Dialect: Postgres}
	assert.Equal(t, `UPDATE t SET a = $1 WHERE b = $2 AND c = $3`, pg.Rebind(query))
}

func TestTimeScan(t *testing.T) {
	var ts Time
	require.NoError(t, ts.Scan("2026-03-01 08:01:00.5+00:00"))
	assert.Equal(t, 500_000_000, ts.Nanosecond())

	require.NoError(t, ts.Scan([]byte("2026-03-01 08:01:00 +0000 UTC")))
	assert.Equal(t, 8, ts.Hour())

	assert.Error(t, ts.Scan(42))
}
