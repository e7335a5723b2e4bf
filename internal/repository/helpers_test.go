package repository

import (
	"path/filepath"
	"testing"

	"github.com/jmehdipour/subscribers/internal/db"
	"github.com/jmehdipour/subscribers/migrations"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// newSQLiteDB returns a migrated SQLite store in a temp dir.
func newSQLiteDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dbx, err := db.NewSQLiteConnection("file:"+filepath.Join(t.TempDir(), "subs.db"), db.SQLOpts{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbx.Close() })

	stmts, err := migrations.Statements(db.DriverSQLite)
	require.NoError(t, err)
	for _, s := range stmts {
		_, err := dbx.Exec(s)
		require.NoError(t, err, s)
	}
	return dbx
}
