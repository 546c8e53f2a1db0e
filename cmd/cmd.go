// Package cmd defines the command-line interface for emission.
package cmd

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(pipelineCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(sectionsCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	// Add the pipeline subcommands to the parent pipeline command
	pipelineCmd.AddCommand(pipelineRunCmd)
	pipelineCmd.AddCommand(pipelineStateCmd)
	pipelineCmd.AddCommand(pipelineResetCmd)
	pipelineCmd.AddCommand(pipelineRunsCmd)

	// Add the store subcommands to the parent store command
	storeCmd.AddCommand(storeStatusCmd)
	storeCmd.AddCommand(storeClearCmd)
	storeCmd.AddCommand(storeMigrateCmd)
	storeCmd.AddCommand(storeLoadCmd)
	storeCmd.AddCommand(storeRebindCmd)
	storeCmd.AddCommand(storeExportRunsCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatusCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("user", "", "User UUID (empty = every user where allowed)")
	rootCmd.PersistentFlags().String("start", "", "Start date in ISO8601, epoch seconds or time ago")
	rootCmd.PersistentFlags().String("end", "", "End date in ISO8601, epoch seconds or time ago")
	rootCmd.PersistentFlags().String("time-field", string(schema.TimeFieldData), "Timestamp axis for windows: data.ts or metadata.write_ts")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or csv or json or parquet")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write output to")
	rootCmd.PersistentFlags().Int("precision", contract.DefaultPrecision, "Decimal precision for numeric columns")
	rootCmd.PersistentFlags().String("profile", "", "Enable profiling and write profiles to files with this prefix")
	rootCmd.PersistentFlags().Int("workers", contract.DefaultWorkers, "Number of users processed concurrently")
	rootCmd.PersistentFlags().Int("width", 0, "Terminal width override (0 = auto-detect)")
	rootCmd.PersistentFlags().String("backend", string(schema.SQLiteBackend), "Store backend: sqlite or mysql or postgresql")
	rootCmd.PersistentFlags().String("db-connect", "", "Store connection string (SQLite file path, or DSN for mysql/postgresql)")
	rootCmd.PersistentFlags().String("cache-backend", string(schema.SQLiteBackend), "Score cache backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("cache-db-connect", "", "Score cache connection string (must differ from db-connect)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("timeout", contract.DefaultTimeout, "Maximum duration of one stage run or export")
	rootCmd.PersistentFlags().String("archive-dir", contract.DefaultArchiveDir, "Directory for export archives")
	rootCmd.PersistentFlags().Bool("purge", false, "Delete entries from the store after they are archived")
	rootCmd.PersistentFlags().Bool("parquet", false, "Write a Parquet sidecar next to each archive")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all persistent flags of pipelineCmd to Viper
	pipelineCmd.PersistentFlags().String("stages", "", "Comma-separated stages: CONFIRM_TRIPS,EXPORT,SCORE (empty = all)")
	pipelineCmd.PersistentFlags().String("lag", contract.DefaultLag, "Keep windows this far behind now (e.g. 5s, 10m)")
	if err := viper.BindPFlags(pipelineCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding pipeline flags", err)
	}

	// Bind all flags of scoreCmd to Viper
	scoreCmd.Flags().Bool("cache", true, "Serve and store reports through the score cache")
	if err := viper.BindPFlags(scoreCmd.Flags()); err != nil {
		contract.LogFatal("Error binding score flags", err)
	}

	// Bind all flags of storeRebindCmd to Viper
	storeRebindCmd.Flags().String("from", "", "User UUID that currently owns the entries")
	storeRebindCmd.Flags().String("to", "", "User UUID that receives the entries")
	storeRebindCmd.Flags().String("keys", "", "Comma-separated metadata keys to move (empty = all)")
	if err := viper.BindPFlags(storeRebindCmd.Flags()); err != nil {
		contract.LogFatal("Error binding store rebind flags", err)
	}

	// Bind all flags of storeMigrateCmd to Viper
	storeMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(storeMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding store migrate flags", err)
	}
}

// optionalUser parses a user flag, mapping an empty value to uuid.Nil.
func optionalUser(s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, nil
	}
	return contract.ParseUserID(s)
}
