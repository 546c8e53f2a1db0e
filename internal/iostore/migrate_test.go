package iostore

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/jiji14/e-mission-server/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateStore_NoneBackend(t *testing.T) {
	err := MigrateStore(schema.NoneBackend, "", -1, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "migrations are not supported for NoneBackend")
}

func TestMigrateStore_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test_migration.db")

	var out bytes.Buffer
	require.NoError(t, MigrateStore(schema.SQLiteBackend, dbPath, -1, &out))
	assert.Contains(t, out.String(), "Successfully migrated from version 0 to version 6")

	out.Reset()
	require.NoError(t, MigrateStore(schema.SQLiteBackend, dbPath, -1, &out))
	assert.Contains(t, out.String(), "No migration needed")

	require.NoError(t, MigrateStore(schema.SQLiteBackend, dbPath, 3, nil))
	require.NoError(t, MigrateStore(schema.SQLiteBackend, dbPath, 0, nil))

	// Opening the store brings the schema back to the latest version.
	store, err := NewSQLStore(schema.SQLiteBackend, dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	version, dirty, err := store.SchemaVersion()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(LatestVersion), version)

	_, err = store.GetState(context.Background(), testUser, schema.StageScore)
	assert.NoError(t, err)
}

func TestMigrateStore_SQLiteInMemory(t *testing.T) {
	err := MigrateStore(schema.SQLiteBackend, ":memory:", -1, nil)
	require.NoError(t, err)
}
