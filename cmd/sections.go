package cmd

import (
	"github.com/jiji14/e-mission-server/core"
	"github.com/spf13/cobra"
)

// sectionsCmd lists sections with their latest confirmation.
var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "List one user's sections with their confirmed modes",
	Long: `List the cleaned sections that start in [--start, --end], each with the
mode of its latest manual confirmation.

Examples:
  emission sections --user <uuid> --start 2015-07-22 --end 2015-07-23
  emission sections --user <uuid> --output parquet --output-file sections.parquet`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor(core.ExecuteSections, "Cannot list sections"),
}
