package cmd

import (
	"github.com/jiji14/e-mission-server/core"
	"github.com/spf13/cobra"
)

// scoreCmd computes the footprint score components.
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute one user's footprint score components",
	Long: `Score one user's sections that start in [--start, --end].

Components:
  0 confirmation coverage - share of relevant sections with a confirmed mode, in [0, 1]
  1 excess over optimal   - relative excess of the footprint over the all-optimal one, unbounded above
  2 savings vs all-drive - share saved against driving everywhere, at most 1
  3 progress vs goal      - share of the goal left unused, at most 1

The intensities, the goal and the long motorized modes come from the
policy section of the config file.

Examples:
  emission score --user <uuid> --start "1 week ago"
  emission score --user <uuid> --cache=false --output json`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor(core.ExecuteScore, "Scoring failed"),
}
