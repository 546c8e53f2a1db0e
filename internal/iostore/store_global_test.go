package iostore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jiji14/e-mission-server/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetManager clears the global manager between tests.
func resetManager(t *testing.T) {
	t.Helper()
	initOnce = sync.Once{}  // Reset for test
	closeOnce = sync.Once{} // Reset for test
	Manager = &StoreManagerImpl{}
	t.Cleanup(func() {
		CloseStores()
		initOnce = sync.Once{}
		closeOnce = sync.Once{}
		Manager = &StoreManagerImpl{}
	})
}

func TestInitStores(t *testing.T) {
	t.Run("single setup", func(t *testing.T) {
		resetManager(t)
		dir := t.TempDir()
		storePath := filepath.Join(dir, "store.db")
		cachePath := filepath.Join(dir, "cache.db")

		require.NoError(t, InitStores(schema.SQLiteBackend, storePath, schema.SQLiteBackend, cachePath))
		assert.NotNil(t, Manager.GetTimeSeries())
		assert.NotNil(t, Manager.GetStateStore())
		assert.NotNil(t, Manager.GetScoreCache())

		_, err := os.Stat(storePath)
		assert.NoError(t, err, "Database file should be created")
	})

	t.Run("idempotent setup", func(t *testing.T) {
		resetManager(t)
		storePath := filepath.Join(t.TempDir(), "store.db")

		assert.NoError(t, InitStores(schema.SQLiteBackend, storePath, "", ""))
		assert.NoError(t, InitStores(schema.SQLiteBackend, storePath, "", ""))
		assert.Nil(t, Manager.GetScoreCache())

		// Multiple closes should be safe (sync.Once)
		CloseStores()
		CloseStores()
	})

	t.Run("none backend is rejected for the store", func(t *testing.T) {
		resetManager(t)
		err := InitStores(schema.NoneBackend, "", "", "")
		assert.Error(t, err)
		assert.Nil(t, Manager.GetTimeSeries())
	})
}

func TestClearStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.db")
	store, err := NewSQLStore(schema.SQLiteBackend, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("stale"), 0o644))

	require.NoError(t, ClearStore(schema.SQLiteBackend, dbPath, ""))
	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		_, err = os.Stat(path)
		assert.True(t, os.IsNotExist(err), path)
	}

	// Clearing a missing file is fine.
	assert.NoError(t, ClearStore(schema.SQLiteBackend, dbPath, ""))
	assert.Error(t, ClearStore(schema.NoneBackend, "", ""))
	assert.NoError(t, ClearCache(schema.NoneBackend, "", ""))
}

func TestExecuteRunsExport(t *testing.T) {
	resetManager(t)
	dir := t.TempDir()
	require.NoError(t, InitStores(schema.SQLiteBackend, filepath.Join(dir, "store.db"), "", ""))

	output := filepath.Join(dir, "export")
	assert.Error(t, ExecuteRunsExport(context.Background(), ""))
	assert.Error(t, ExecuteRunsExport(context.Background(), output), "no runs recorded yet")

	store := Manager.GetStateStore()
	runID, err := store.BeginRun(context.Background(), testUser, schema.StageExport, schema.TimeRange{StartTs: 1, EndTs: 2})
	require.NoError(t, err)
	require.NoError(t, store.EndRun(context.Background(), runID, schema.RunSuccess, 5, nil))

	require.NoError(t, ExecuteRunsExport(context.Background(), output))
	_, err = os.Stat(output + ".pipeline_runs.parquet")
	assert.NoError(t, err)
}
