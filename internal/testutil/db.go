// Package testutil provides test utilities for database setup and for
// building conversation trees.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/forkchat/internal/infrastructure/sqlite"
)

// NewTestDB creates a migrated SQLite database in a temp directory.
// The database is closed when the test completes.
func NewTestDB(t testing.TB) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
