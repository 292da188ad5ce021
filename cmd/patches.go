package cmd

import (
	"github.com/khaes-kth/drr-execdiff/core"
	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/spf13/cobra"
)

// patchesCmd lists patch files grouped by bug.
var patchesCmd = &cobra.Command{
	Use:   "patches <dir>",
	Short: "List the patch files of a directory grouped by bug.",
	Long: `Scan a directory for patch files named like patch1-Time-5-Arja.patch and
group them by the bug they fix.

Files whose name does not carry a project and bug number are ignored.

Examples:
  execdiff patches ./patches
  execdiff patches ./patches --output csv --output-file patches.csv`,
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, args []string) {
		if err := core.ExecutePatches(rootCtx, cfg, args[0]); err != nil {
			contract.LogFatal("Cannot list patches", err)
		}
	},
}
