package cmd

import (
	"github.com/jiji14/e-mission-server/core"
	"github.com/spf13/cobra"
)

// exportCmd archives one user's entries for an explicit window.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Archive one user's entries in a time range to gzip JSON",
	Long: `Write every entry of one user whose timestamp falls in [--start, --end]
to <archive-dir>/archive_<user>_<start>_<end>.gz. Bounds are truncated to
whole seconds. Ids are written as {"$oid": ...} and user ids as {"$uuid": ...}
so the archive can be loaded back with 'emission store load'.

This does not touch the EXPORT stage watermark.

Examples:
  emission export --user <uuid> --start 2015-07-22 --end 2015-07-23

  # Export on the write_ts axis and drop the exported entries
  emission export --user <uuid> --start "2 weeks ago" --time-field metadata.write_ts --purge`,
	PreRunE: sharedSetupWrapper,
	Run:     runExecutor(core.ExecuteExport, "Export failed"),
}
