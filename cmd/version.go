package cmd

import (
	"runtime"

	"github.com/jiji14/e-mission-server/internal/iostore"
	"github.com/spf13/cobra"
)

// versionCmd shows the verbose version for diagnostic purposes.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of emission.",
	Long: `Display version information including build details and the store
schema version this binary migrates to.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("emission CLI\n")
		cmd.Printf("  Version: %s\n", version)
		cmd.Printf("  Commit:  %s\n", commit)
		cmd.Printf("  Built:   %s\n", date)
		cmd.Printf("  Schema:  v%d\n", iostore.LatestVersion)
		cmd.Printf("  Runtime: %s\n", runtime.Version())
	},
}
