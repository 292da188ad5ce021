package cmd

import (
	"github.com/khaes-kth/drr-execdiff/core"
	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// reportCmd aggregates per-depth metrics over the comparable corpus.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregate per-depth metrics over the comparable corpus.",
	Long: `Compare the exec-diff artifacts of every depth.

Per depth the report shows:
- How many commits were analyzed, and how many produced a trace, a
  manipulated diff or a state diff (counted over every commit of the depth)
- How many state diffs show states that occur on one side only
- Average collector, line/var mapping, diff and UI times

The averages cover only the comparable corpus, i.e. the commits that have a
state diff at every depth, so every depth is averaged over the same commits.

The report is written as CSV with the fixed header consumed by the plotting
scripts unless --output selects another format.

Examples:
  # Print the canonical CSV
  execdiff report --root ./experiment

  # Print the report as a table
  execdiff report --root ./experiment --output text

  # Use depth 2 as the reference for the corpus
  execdiff report --depths 3 --reference-depth 2`,
	Args:    cobra.NoArgs,
	PreRunE: reportSetupWrapper,
	Run:     executeWith(core.ExecuteReport, "Cannot build the depth report"),
}

// reportSetupWrapper makes CSV the default output of report before the shared setup.
func reportSetupWrapper(cmd *cobra.Command, args []string) error {
	viper.SetDefault("output", schema.CSVOut)
	return sharedSetupWrapper(cmd, args)
}

// corpusCmd lists the comparable corpus.
var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "List the commits that have a state diff at every depth.",
	Long: `Resolve the comparable corpus without computing any metrics.

Useful for checking which commits a report will average over, or for
finding depths that are missing state diffs.

Examples:
  execdiff corpus --root ./experiment
  execdiff corpus --root ./experiment --output json`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run:     executeWith(core.ExecuteCorpus, "Cannot resolve the comparable corpus"),
}
