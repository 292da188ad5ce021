package cmd

import (
	"github.com/khaes-kth/drr-execdiff/core"
	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/internal/ledger"
	"github.com/spf13/cobra"
)

// runCmd drives every patch through checkout, trace collection and analysis.
var runCmd = &cobra.Command{
	Use:   "run <patch-list>",
	Short: "Run the exec-diff pipeline for every patch at every depth.",
	Long: `Drive each patch of the patch list through the exec-diff pipeline.

For every selected depth and patch the driver:
- Checks out the patch branch and verifies the applied marker
- Materializes the original and patched source trees
- Invokes the trace collector on the left and right commits
- Invokes the analyzer to produce the state diff

Steps whose output already exists at a depth are skipped, so an interrupted
run can be resumed. A failing patch is recorded and the run moves on.

The patch list is a text file with one branch per line (a leading "origin/"
or "remotes/" is stripped) or a YAML manifest of {patch, tests} entries.

Examples:
  # Run every depth with isolated checkouts per depth
  execdiff run patches.txt --repo-path ./drr{depth} --root ./experiment

  # Run only depth 2 for the Time project
  execdiff run patches.yaml --repo-path ./drr --depth 2 --project Time

  # Record the outcomes as CSV
  execdiff run patches.txt --repo-path ./drr --output csv --output-file runs.csv`,
	Args:    cobra.ExactArgs(1),
	PreRunE: sharedSetupWrapper,
	Run:     executeWith(core.ExecuteRun, "Cannot run the pipeline"),
}

// executeWith adapts an executor to a cobra Run function that exits on error.
func executeWith(fn core.ExecutorFunc, failMsg string) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		if err := fn(rootCtx, cfg, ledger.Manager); err != nil {
			contract.LogFatal(failMsg, err)
		}
	}
}
