package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSqliteDB_Memory(t *testing.T) {
	conn, err := NewSqliteDB()
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)
}

func TestNewSqliteDB_FileCreatesParent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "journal.db")

	conn, err := NewSqliteDB(WithPath(dbPath), WithMaxOpenConns(1))
	require.NoError(t, err)
	defer conn.Close()

	assert.DirExists(t, filepath.Dir(dbPath))
	assert.FileExists(t, dbPath)
}

func TestNewSqliteDB_CustomPragmas(t *testing.T) {
	conn, err := NewSqliteDB(WithPragmas("PRAGMA foreign_keys=ON;"), WithMaxOpenConns(1))
	require.NoError(t, err)
	defer conn.Close()

	var enabled int
	require.NoError(t, conn.Get(&enabled, "PRAGMA foreign_keys;"))
	assert.Equal(t, 1, enabled)
}
