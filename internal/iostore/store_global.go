package iostore

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
)

// scoreCacheTable is the name of the table for score caching.
const scoreCacheTable = "score_cache"

// Global Manager instance for main logic.
var (
	Manager   = &StoreManagerImpl{}
	initOnce  sync.Once
	closeOnce sync.Once
)

// InitStores initializes the global manager with the time series store and score cache.
// An empty cacheBackend leaves the cache unset; NoneBackend installs a no-op cache.
func InitStores(backend schema.DatabaseBackend, connStr string, cacheBackend schema.DatabaseBackend, cacheConnStr string) error {
	var initErr error

	initOnce.Do(func() {
		store, err := NewSQLStore(backend, connStr)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize time series store: %w", err)
			return
		}

		var cache contract.CacheStore
		if cacheBackend != "" {
			cache, err = OpenScoreCache(cacheBackend, cacheConnStr)
			if err != nil {
				_ = store.Close()
				initErr = fmt.Errorf("failed to initialize score cache: %w", err)
				return
			}
		}

		Manager.Lock()
		defer Manager.Unlock()
		Manager.store = store
		Manager.scoreCache = cache
	})

	return initErr
}

// OpenScoreCache opens the score cache table on the given backend.
func OpenScoreCache(backend schema.DatabaseBackend, connStr string) (contract.CacheStore, error) {
	return NewCacheStore(scoreCacheTable, backend, connStr)
}

// CloseStores should be called on application shutdown.
func CloseStores() { // called in main defer
	closeOnce.Do(func() {
		Manager.Lock()
		defer Manager.Unlock()
		if Manager.store != nil {
			_ = Manager.store.Close()
		}
		if Manager.scoreCache != nil {
			_ = Manager.scoreCache.Close()
		}
	})
}

// ClearStore removes every entry, watermark and run record.
// For SQLite, it deletes the database file.
// For SQL backends (MySQL/PostgreSQL), it drops the store tables.
func ClearStore(backend schema.DatabaseBackend, dbFilePath, connStr string) error {
	switch backend {
	case schema.SQLiteBackend:
		return removeSQLiteFile(dbFilePath)
	case schema.MySQLBackend, schema.PostgreSQLBackend:
		for _, table := range storeTables {
			if err := dropSQLTable(backend, connStr, table); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported store backend for clearing: %s", backend)
	}
}

// ClearCache clears the score cache for the specified backend.
// For SQLite, it deletes the database file.
// For SQL backends (MySQL/PostgreSQL), it drops the table.
// For NoneBackend, it does nothing.
func ClearCache(backend schema.DatabaseBackend, dbFilePath, connStr string) error {
	switch backend {
	case schema.SQLiteBackend:
		return removeSQLiteFile(dbFilePath)
	case schema.MySQLBackend, schema.PostgreSQLBackend:
		return dropSQLTable(backend, connStr, scoreCacheTable)
	case schema.NoneBackend:
		return nil
	default:
		return fmt.Errorf("unsupported cache backend for clearing: %s", backend)
	}
}

// removeSQLiteFile deletes a SQLite file and its WAL side files, ignoring missing files.
func removeSQLiteFile(dbFilePath string) error {
	if dbFilePath == "" {
		return fmt.Errorf("dbFilePath cannot be empty for SQLite backend")
	}
	for _, path := range []string{dbFilePath, dbFilePath + "-wal", dbFilePath + "-shm"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove SQLite database file %s: %w", path, err)
		}
	}
	return nil
}

// dropSQLTable connects to the SQL database and drops the table if it exists.
func dropSQLTable(backend schema.DatabaseBackend, connStr, tableName string) error {
	if err := validateTableName(tableName); err != nil {
		return err
	}
	db, err := sql.Open(driverName(backend), connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", backend, err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping %s database: %w", backend, err)
	}

	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteTableName(tableName, backend))
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", tableName, err)
	}
	return nil
}
