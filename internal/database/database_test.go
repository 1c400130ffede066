package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Health(context.Background()))

	var journalMode string
	require.NoError(t, db.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	for _, table := range []string{"agents", "tasks"} {
		var name string
		err := db.Conn().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"INSERT INTO agents (id, name, definition) VALUES ('a', 'flow', '{}')")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM agents").Scan(&count))
	assert.Equal(t, 1, count)

	err = db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"INSERT INTO agents (id, name, definition) VALUES ('b', 'other', '{}')"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM agents").Scan(&count))
	assert.Equal(t, 1, count)
}
