package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jiji14/e-mission-server/core"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/internal/iostore"
	"github.com/jiji14/e-mission-server/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// storeConnection reads and validates the store backend settings.
func storeConnection() (schema.DatabaseBackend, string, error) {
	if err := loadConfigFile(); err != nil {
		return "", "", err
	}
	backend := schema.DatabaseBackend(viper.GetString("backend"))
	connStr := viper.GetString("db-connect")
	if backend == schema.NoneBackend {
		return "", "", fmt.Errorf("the time series store cannot use the %s backend", backend)
	}
	if err := contract.ValidateDatabaseConnectionString(backend, connStr, "db-connect"); err != nil {
		return "", "", err
	}
	return backend, connStr, nil
}

// storeSetup loads minimal configuration needed for store operations.
// This is used by commands that need store access without full shared setup.
func storeSetup() error {
	backend, connStr, err := storeConnection()
	if err != nil {
		return err
	}

	// Initialize the store only; admin commands never touch the score cache
	if err := iostore.InitStores(backend, connStr, "", ""); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	cfg.Backend = backend
	cfg.DBConnect = connStr
	cfg.OutputFile = viper.GetString("output-file")
	return nil
}

// storeSetupWrapper wraps storeSetup to provide PreRunE for store commands.
func storeSetupWrapper(_ *cobra.Command, _ []string) error {
	return storeSetup()
}

// storeMigrateSetup loads configuration for migrate operations.
// It does NOT open the store, since opening applies every pending migration.
func storeMigrateSetup(_ *cobra.Command, _ []string) error {
	backend, connStr, err := storeConnection()
	if err != nil {
		return err
	}
	cfg.Backend = backend
	cfg.DBConnect = connStr
	return nil
}

// storeFilePath returns the SQLite file that holds the store.
func storeFilePath() string {
	if cfg.DBConnect != "" {
		return cfg.DBConnect
	}
	return contract.GetStoreDBFilePath()
}

// storeCmd focused on time series store management.
//
// Note: Store subcommands use minimal initialization instead of the full
// sharedSetup used by pipeline commands.
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the time series store (entries, watermarks, run history)",
	Long: `Manage the database that holds every user's time series entries, the
pipeline watermarks and the pipeline run history.

Supported backends: SQLite (default), MySQL, PostgreSQL

Subcommands:
  status      - Show table sizes and connection info
  clear       - Remove every entry, watermark and run
  migrate     - Move the schema to a specific version
  load        - Load a JSON fixture or a .gz archive
  rebind      - Move entries from one user to another
  export-runs - Export the run history to Parquet`,
}

// storeStatusCmd shows store status.
var storeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display store statistics and connection details",
	Long: `Show detailed information about the time series store.

Displays:
- Backend type and connection status
- Schema version
- Row counts for entries, pipeline state and pipeline runs

Examples:
  # Check store status
  emission store status`,
	PreRunE: storeSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		status, err := iostore.Manager.GetTimeSeries().GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get store status", err)
		}
		iostore.PrintStoreStatus(status)
	},
}

// storeClearCmd clears the store.
var storeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all entries, watermarks and pipeline runs",
	Long: `Delete the time series store.

For SQLite: Deletes the database file
For MySQL/PostgreSQL: Drops the store tables

Examples:
  # Clear the default SQLite store
  emission store clear

  # Clear a PostgreSQL store (set connection string via env variable)
  EMISSION_BACKEND=postgresql EMISSION_DB_CONNECT="..." emission store clear`,
	PreRunE: storeMigrateSetup,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iostore.ClearStore(cfg.Backend, storeFilePath(), cfg.DBConnect); err != nil {
			contract.LogFatal("Failed to clear store", err)
		}
		fmt.Println("Store cleared successfully.")
	},
}

// storeMigrateCmd runs database migrations for the store.
var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations (upgrades/downgrades)",
	Long: `Manage database schema versions for the time series store.

Examples:
  # Migrate to the latest version
  emission store migrate

  # Roll back every migration
  emission store migrate --target-version 0`,
	PreRunE: storeMigrateSetup,
	Run: func(_ *cobra.Command, _ []string) {
		targetVersion := viper.GetInt("target-version")
		if err := iostore.MigrateStore(cfg.Backend, cfg.DBConnect, targetVersion, os.Stdout); err != nil {
			contract.LogFatal("Failed to run migrations", err)
		}
	},
}

// storeLoadCmd loads entries from files.
var storeLoadCmd = &cobra.Command{
	Use:   "load <file>...",
	Short: "Load entries from JSON fixtures or .gz archives",
	Long: `Insert the entries of JSON fixtures or previous exports into the store.

Files hold a JSON array of entries with {"$oid": ...} ids and {"$uuid": ...}
user ids. Files ending in .gz are read as gzip archives. With --user every
entry is rebound to that user under a fresh id, so one fixture can seed
several users.

Examples:
  # Load a fixture as-is
  emission store load testdata/real_example.json

  # Load the same fixture for a test user
  emission store load testdata/real_example.json --user 0763de67-f61e-3f5d-90e7-518e69793954`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: storeSetupWrapper,
	Run: func(_ *cobra.Command, args []string) {
		user, err := optionalUser(viper.GetString("user"))
		if err != nil {
			contract.LogFatal("Invalid --user", err)
		}
		loadCfg := cfg.Clone()
		loadCfg.UserID = user
		for _, path := range args {
			if err := core.ExecuteStoreLoad(rootCtx, loadCfg, storeManager, path); err != nil {
				contract.LogFatal("Failed to load entries", err)
			}
		}
	},
}

// storeRebindCmd moves entries between users.
var storeRebindCmd = &cobra.Command{
	Use:   "rebind",
	Short: "Move entries from one user to another",
	Long: `Reassign entries of one user to another user.

Examples:
  # Move every entry
  emission store rebind --from <uuid> --to <uuid>

  # Move only mode confirmations
  emission store rebind --from <uuid> --to <uuid> --keys manual/mode_confirm`,
	PreRunE: storeSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		from, err := optionalUser(viper.GetString("from"))
		if err != nil {
			contract.LogFatal("Invalid --from", err)
		}
		to, err := optionalUser(viper.GetString("to"))
		if err != nil {
			contract.LogFatal("Invalid --to", err)
		}
		var keys []string
		for k := range strings.SplitSeq(viper.GetString("keys"), ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		if err := core.ExecuteStoreRebind(rootCtx, storeManager, from, to, keys); err != nil {
			contract.LogFatal("Failed to rebind entries", err)
		}
	},
}

// storeExportRunsCmd exports run history.
var storeExportRunsCmd = &cobra.Command{
	Use:   "export-runs",
	Short: "Export pipeline run history to Parquet for BI tools",
	Long: `Export every recorded pipeline run to a Parquet file.

Examples:
  # Writes runs.pipeline_runs.parquet
  emission store export-runs --output-file runs`,
	PreRunE: storeSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iostore.ExecuteRunsExport(rootCtx, cfg.OutputFile); err != nil {
			contract.LogFatal("Failed to export pipeline runs", err)
		}
	},
}
