package repository

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"querydeck/internal/db"
)

// newTestDB opens a migrated SQLite metastore on a per-test temp file.
// The single pool serves as both write and read side in tests.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meta.db")
	conn, err := db.OpenSQLite(path, "write", 0)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.RunMigrations(conn))
	return conn
}
