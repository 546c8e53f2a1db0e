package cmd

import (
	"fmt"

	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/internal/iostore"
	"github.com/jiji14/e-mission-server/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cacheSetup loads minimal configuration needed for cache operations.
// This is used by commands that need cache access without full shared setup.
func cacheSetup() error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	backend := schema.DatabaseBackend(viper.GetString("cache-backend"))
	connStr := viper.GetString("cache-db-connect")

	if err := contract.ValidateDatabaseConnectionString(backend, connStr, "cache-db-connect"); err != nil {
		return err
	}

	cfg.CacheBackend = backend
	cfg.CacheDBConnect = connStr
	return nil
}

// cacheSetupWrapper wraps cacheSetup to provide PreRunE for cache commands.
func cacheSetupWrapper(_ *cobra.Command, _ []string) error {
	return cacheSetup()
}

// cacheFilePath returns the SQLite file that holds the score cache.
func cacheFilePath() string {
	if cfg.CacheDBConnect != "" {
		return cfg.CacheDBConnect
	}
	return contract.GetCacheDBFilePath()
}

// cacheCmd focused on score cache management.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the footprint score cache",
	Long: `Manage the cache of footprint score reports.

Score reports are cached per user, window and policy so repeated scoring of
the same window skips the section scan. The SCORE pipeline stage fills it.

Supported backends: SQLite (default), MySQL, PostgreSQL, or None (in-memory)

Subcommands:
  status - Show cache statistics and connection info
  clear  - Remove all cached reports`,
}

// cacheClearCmd clears the cache.
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached score reports",
	Long: `Delete all cached score reports from the configured backend.

For SQLite: Deletes the database file
For MySQL/PostgreSQL: Drops the cache table

Examples:
  # Clear SQLite cache (default)
  emission cache clear

  # Clear MySQL cache (set connection string via env variable)
  EMISSION_CACHE_BACKEND=mysql EMISSION_CACHE_DB_CONNECT="..." emission cache clear`,
	PreRunE: cacheSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iostore.ClearCache(cfg.CacheBackend, cacheFilePath(), cfg.CacheDBConnect); err != nil {
			contract.LogFatal("Failed to clear cache", err)
		}
		fmt.Println("Cache cleared successfully.")
	},
}

// cacheStatusCmd shows cache status.
var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display cache statistics and connection details",
	Long: `Show detailed information about the score cache.

Examples:
  # Check cache status
  emission cache status`,
	PreRunE: cacheSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		cache, err := iostore.OpenScoreCache(cfg.CacheBackend, cfg.CacheDBConnect)
		if err != nil {
			contract.LogFatal("Failed to open cache", err)
		}
		defer func() { _ = cache.Close() }()

		status, err := cache.GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get cache status", err)
		}
		iostore.PrintCacheStatus(status)
	},
}
