// Package cmd defines the command-line interface for execdiff.
package cmd

import (
	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(corpusCmd)
	rootCmd.AddCommand(patchesCmd)
	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	// Add the ledger subcommands to the parent ledger command
	ledgerCmd.AddCommand(ledgerStatusCmd)
	ledgerCmd.AddCommand(ledgerExportCmd)
	ledgerCmd.AddCommand(ledgerClearCmd)
	ledgerCmd.AddCommand(ledgerMigrateCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("root", ".", "Experiment root holding the exec-diff<D> directories")
	rootCmd.PersistentFlags().IntP("depths", "d", contract.DefaultDepths, "Number of search depths")
	rootCmd.PersistentFlags().Int("reference-depth", -1, "Depth whose state diffs seed the comparable corpus (-1 = deepest)")
	rootCmd.PersistentFlags().String("depth-dir", contract.DefaultDepthDir, "Artifact directory per depth, relative to root (%d = depth)")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or csv or json or parquet (report defaults to csv)")
	rootCmd.PersistentFlags().StringP("output-file", "o", "", "Optional path to write output to")
	rootCmd.PersistentFlags().Int("precision", contract.DefaultPrecision, "Decimal precision for timings in text output")
	rootCmd.PersistentFlags().Int("width", 0, "Terminal width override (0 = auto-detect)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().Int("workers", contract.DefaultWorkers, "Number of concurrent workers")
	rootCmd.PersistentFlags().String("ledger-backend", string(schema.SQLiteBackend), "Ledger backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("ledger-db-connect", "", "Database connection string (SQLite file path, or DSN for mysql/postgresql)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug or info or warn or error")
	rootCmd.PersistentFlags().String("log-format", contract.LogFormatText, "Log format: text or json")
	rootCmd.PersistentFlags().String("profile", "", "Enable profiling and write profiles to files with this prefix")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Bind all flags of runCmd to Viper
	runCmd.Flags().Int("depth", -1, "Run a single depth (-1 = every depth)")
	runCmd.Flags().String("repo-path", "", "Patch repository checkout; {depth} gives each depth its own checkout")
	runCmd.Flags().String("work-dir", "", "Root for materialized source trees (default <root>/work)")
	runCmd.Flags().String("metadata-dir", contract.DefaultMetadataDir, "Directory holding <Project>-metadata.csv test catalogs")
	runCmd.Flags().String("reference-diff", contract.DefaultReferenceDiff, "Reference diff template ({repo}, {patch})")
	runCmd.Flags().String("applied-marker", contract.DefaultAppliedMarker, "Commit message marker of an applied patch")
	runCmd.Flags().String("project", "", "Only run patches of this project")
	runCmd.Flags().String("left-ref", "", "Fixed left commit (default: parent of the patch commit)")
	runCmd.Flags().String("base-url", contract.DefaultBaseURL, "Base URL handed to the analyzer")
	runCmd.Flags().String("pin-file", "", "File rewritten in materialized trees (e.g. pom.xml)")
	runCmd.Flags().String("pin-from", "", "Text replaced in --pin-file")
	runCmd.Flags().String("pin-to", "", "Replacement text for --pin-from")
	runCmd.Flags().String("collector-cmd", contract.DefaultCollectorCmd, "Trace collector executable")
	runCmd.Flags().StringSlice("collector-args", nil, "Trace collector argument templates")
	runCmd.Flags().String("collector-dir", "", "Working directory of the trace collector")
	runCmd.Flags().String("collector-timeout", "", "Trace collector timeout (e.g. 15m)")
	runCmd.Flags().String("analyzer-cmd", contract.DefaultAnalyzerCmd, "Analyzer executable")
	runCmd.Flags().StringSlice("analyzer-args", nil, "Analyzer argument templates")
	runCmd.Flags().String("analyzer-dir", "", "Working directory of the analyzer")
	runCmd.Flags().String("analyzer-timeout", "", "Analyzer timeout (e.g. 15m)")
	if err := viper.BindPFlags(runCmd.Flags()); err != nil {
		contract.LogFatal("Error binding run flags", err)
	}

	// Bind all flags of ledgerMigrateCmd to Viper
	ledgerMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(ledgerMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding ledger migrate flags", err)
	}
}
