package iostore

import (
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
)

// Table names for the time series store.
const (
	entriesTable  = "timeseries_entries"
	stateTable    = "pipeline_state"
	runsTable     = "pipeline_runs"
	versionsTable = "schema_migrations"
)

// storeTables lists every table owned by the store, migrations included.
var storeTables = []string{entriesTable, stateTable, runsTable, versionsTable}

// SQLStore is the time series store and pipeline state store over one database.
// Both share a connection pool so SQLite keeps a single writer.
type SQLStore struct {
	db      *sql.DB
	backend schema.DatabaseBackend
	connStr string
}

var (
	_ contract.TimeSeries         = &SQLStore{} // Compile-time check
	_ contract.PipelineStateStore = &SQLStore{} // Compile-time check
)

// NewSQLStore opens the store database and applies every pending migration.
func NewSQLStore(backend schema.DatabaseBackend, connStr string) (*SQLStore, error) {
	if backend == schema.NoneBackend {
		return nil, fmt.Errorf("unsupported store backend: %s. Must be sqlite, mysql, or postgresql", backend)
	}

	db, err := openDB(backend, connStr, contract.GetStoreDBFilePath())
	if err != nil {
		return nil, err
	}

	if err := migrateDB(db, backend, -1, nil); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate store schema: %w", err)
	}

	return &SQLStore{
		db:      db,
		backend: backend,
		connStr: connStr,
	}, nil
}

// table returns the quoted name of a store table.
func (s *SQLStore) table(name string) string {
	return quoteTableName(name, s.backend)
}

// q rewrites placeholders for the store backend.
func (s *SQLStore) q(query string) string {
	return bind(s.backend, query)
}

// Close closes the underlying DB connection.
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetStatus returns status information about the time series store.
func (s *SQLStore) GetStatus() (schema.StoreStatus, error) {
	status := schema.StoreStatus{
		Backend:    string(s.backend),
		Connected:  s.db != nil,
		KeyCounts:  make(map[string]int64),
		TableSizes: make(map[string]int64),
	}
	if s.db == nil {
		return status, nil
	}
	status.Database = s.DatabaseName()
	version, _, err := s.SchemaVersion()
	if err != nil {
		return status, fmt.Errorf("failed to read schema version: %w", err)
	}
	status.SchemaVersion = version

	row := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*), COUNT(DISTINCT user_id) FROM %s", s.table(entriesTable)))
	if err := row.Scan(&status.TotalEntries, &status.TotalUsers); err != nil {
		return status, fmt.Errorf("failed to get total entries: %w", err)
	}

	if status.TotalEntries > 0 {
		var oldest, last sql.NullFloat64
		row = s.db.QueryRow(fmt.Sprintf("SELECT MIN(write_ts), MAX(write_ts) FROM %s", s.table(entriesTable)))
		if err := row.Scan(&oldest, &last); err != nil {
			return status, fmt.Errorf("failed to get write time range: %w", err)
		}
		status.OldestWriteTs = oldest.Float64
		status.LastWriteTs = last.Float64

		rows, err := s.db.Query(fmt.Sprintf("SELECT metadata_key, COUNT(*) FROM %s GROUP BY metadata_key", s.table(entriesTable)))
		if err != nil {
			return status, fmt.Errorf("failed to count keys: %w", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var key string
			var count int64
			if err := rows.Scan(&key, &count); err != nil {
				return status, fmt.Errorf("failed to scan key count: %w", err)
			}
			status.KeyCounts[key] = count
		}
		if err := rows.Err(); err != nil {
			return status, fmt.Errorf("error iterating key counts: %w", err)
		}
	}

	for _, table := range []string{entriesTable, stateTable, runsTable} {
		var count int64
		if err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table(table))).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}
	return status, nil
}

// SchemaVersion returns the applied migration version.
func (s *SQLStore) SchemaVersion() (uint, bool, error) {
	return SchemaVersion(s.db, s.backend)
}

// DatabaseName returns the configured database name for MySQL and PostgreSQL, or the file for SQLite.
func (s *SQLStore) DatabaseName() string {
	switch s.backend {
	case schema.MySQLBackend:
		cfg, err := mysql.ParseDSN(s.connStr)
		if err != nil {
			return ""
		}
		return cfg.DBName
	case schema.PostgreSQLBackend:
		var name string
		if err := s.db.QueryRow("SELECT current_database()").Scan(&name); err != nil {
			return ""
		}
		return name
	default:
		if s.connStr == "" {
			return contract.GetStoreDBFilePath()
		}
		return s.connStr
	}
}
