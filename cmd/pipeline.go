package cmd

import (
	"github.com/jiji14/e-mission-server/core"
	"github.com/spf13/cobra"
)

// pipelineCmd groups the incremental pipeline commands.
var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run and inspect the incremental analysis pipeline",
	Long: `The pipeline runs three stages per user, in order:

  CONFIRM_TRIPS - build confirmed trips from cleaned sections
  EXPORT        - archive processed entries to a gzip JSON file
  SCORE         - compute footprint scores into the score cache

Each stage keeps a watermark. A run only processes entries after the
watermark and at least --lag behind now, and a downstream stage never
passes the watermark of CONFIRM_TRIPS.`,
}

// pipelineRunCmd runs the stages.
var pipelineRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the selected stages for one user or every user",
	Long: `Advance the selected stages. Without --user every user in the store is
processed, --workers at a time. A failed stage is recorded and reported
but does not stop the other users.

Examples:
  # Run every stage for every user
  emission pipeline run

  # Only confirm trips for one user, processing the write_ts axis
  emission pipeline run --user <uuid> --stages CONFIRM_TRIPS --time-field metadata.write_ts

  # Archive and purge what was exported
  emission pipeline run --stages CONFIRM_TRIPS,EXPORT --purge --parquet`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor(core.ExecutePipelineRun, "Pipeline run failed"),
}

// pipelineStateCmd shows the watermarks.
var pipelineStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the watermark and last run of each stage",
	Long: `Print the per-stage watermark (last processed timestamp) and last run.

Examples:
  emission pipeline state --user <uuid>
  emission pipeline state --output json`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor(core.ExecutePipelineState, "Cannot read pipeline state"),
}

// pipelineResetCmd forgets the watermarks.
var pipelineResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the watermarks of the selected stages for one user",
	Long: `Reset the selected stages so their next run starts from the user's
earliest entry. Run history is kept.

Examples:
  emission pipeline reset --user <uuid> --stages SCORE`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor(core.ExecutePipelineReset, "Cannot reset pipeline state"),
}

// pipelineRunsCmd lists recorded runs.
var pipelineRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded stage runs",
	Long: `List every recorded run of the selected stages with its window,
status and processed count.

Examples:
  emission pipeline runs --user <uuid> --output csv --output-file runs.csv`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor(core.ExecutePipelineRuns, "Cannot list pipeline runs"),
}
