package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/khaes-kth/drr-execdiff/core"
	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/internal/ledger"
	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// loadLedgerConfig reads only the keys ledger commands need.
func loadLedgerConfig() error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	backend, err := contract.ParseDatabaseBackend(viper.GetString("ledger-backend"))
	if err != nil {
		return err
	}
	connStr := viper.GetString("ledger-db-connect")
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return err
	}

	colors, err := contract.ParseBoolString(viper.GetString("color"))
	if err != nil {
		return fmt.Errorf("invalid --color value: %w", err)
	}
	installLogger(viper.GetString("log-level"), viper.GetString("log-format"), colors)

	cfg.LedgerBackend = backend
	cfg.LedgerDBConnect = connStr
	cfg.Output = schema.OutputMode(strings.ToLower(viper.GetString("output")))
	cfg.OutputFile = viper.GetString("output-file")
	cfg.UseColors = colors
	return nil
}

// ledgerSetup loads minimal configuration and opens the ledger.
// This is used by commands that need ledger access without full shared setup.
func ledgerSetup() error {
	if err := loadLedgerConfig(); err != nil {
		return err
	}
	if err := ledger.InitLedger(cfg.LedgerBackend, cfg.LedgerDBConnect); err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}
	return nil
}

// ledgerSetupWrapper wraps ledgerSetup to provide PreRunE for ledger commands.
func ledgerSetupWrapper(_ *cobra.Command, _ []string) error {
	return ledgerSetup()
}

// ledgerMigrateSetup loads the ledger configuration without opening the store,
// so no tables are created before the migrations run on a fresh database.
func ledgerMigrateSetup() error {
	if err := loadLedgerConfig(); err != nil {
		return err
	}
	if cfg.LedgerBackend == schema.SQLiteBackend && cfg.LedgerDBConnect == "" {
		cfg.LedgerDBConnect = ledger.GetDBFilePath()
	}
	return nil
}

// ledgerMigrateSetupWrapper wraps ledgerMigrateSetup to provide PreRunE for migrate command.
func ledgerMigrateSetupWrapper(_ *cobra.Command, _ []string) error {
	return ledgerMigrateSetup()
}

// ledgerDBFilePath is the SQLite file a clear should remove.
func ledgerDBFilePath() string {
	if cfg.LedgerDBConnect != "" {
		return cfg.LedgerDBConnect
	}
	return ledger.GetDBFilePath()
}

// ledgerCmd focused on execution ledger management.
//
// Note: Ledger subcommands use minimal initialization (ledgerSetup) instead of
// the full sharedSetup. No experiment root or patch list is needed to inspect
// or export past batches.
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage the execution ledger of past runs and reports",
	Long: `Manage the execution ledger.

Every run and report invocation is recorded as a batch, storing:
- Batch metadata (uuid, kind, configuration, start and end time)
- The outcome of every pipeline run (final state, visited states, error, duration)
- The per-depth statistics of every report

Supported backends: SQLite (default), MySQL, PostgreSQL, or None (disabled)

Subcommands:
  status  - Show ledger statistics
  export  - Export data to Parquet for analytics
  clear   - Remove all ledger data
  migrate - Run database schema migrations

Examples:
  # Check which outcomes have been recorded
  execdiff ledger status

  # Export for analysis in pandas/DuckDB
  execdiff ledger export --output-file ledger`,
}

// ledgerStatusCmd shows ledger status.
var ledgerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display ledger statistics and connection details",
	Long: `Show the backend, batch counts, run outcomes and table sizes of the ledger.

Examples:
  execdiff ledger status
  execdiff ledger status --output json`,
	PreRunE: ledgerSetupWrapper,
	Run:     executeWith(core.ExecuteLedgerStatus, "Failed to get ledger status"),
}

// ledgerExportCmd exports ledger data to Parquet files.
var ledgerExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ledger to Parquet for BI tools and analytics",
	Long: `Export all ledger data to Parquet.

Writes three files next to --output-file:
- <output-file>.batches.parquet
- <output-file>.runs.parquet
- <output-file>.depth_stats.parquet

Requires: --output-file parameter

Examples:
  execdiff ledger export --output-file ledger
  duckdb -c "SELECT state, count(*) FROM read_parquet('ledger.runs.parquet') GROUP BY state"`,
	PreRunE: ledgerSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := ledger.ExecuteLedgerExport(os.Stdout, ledger.Manager, cfg.OutputFile); err != nil {
			contract.LogFatal("Failed to export ledger data", err)
		}
	},
}

// ledgerClearCmd clears the ledger.
var ledgerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all ledger data",
	Long: `Delete every recorded batch, run outcome and depth statistic.

WARNING: This action cannot be undone. Consider exporting data first.

Examples:
  execdiff ledger export --output-file backup
  execdiff ledger clear`,
	PreRunE: ledgerMigrateSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := ledger.ClearLedger(cfg.LedgerBackend, ledgerDBFilePath(), cfg.LedgerDBConnect); err != nil {
			contract.LogFatal("Failed to clear ledger data", err)
		}
		fmt.Println("Ledger data cleared successfully.")
	},
}

// ledgerMigrateCmd runs database migrations for the ledger.
var ledgerMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations (upgrades/downgrades)",
	Long: `Manage database schema versions of the ledger.

By default, migrates to the latest version. Use --target-version for specific versions.

Examples:
  # Migrate to latest version (default)
  execdiff ledger migrate

  # Migrate to specific version
  execdiff ledger migrate --target-version 2

  # Rollback everything
  execdiff ledger migrate --target-version 0`,
	PreRunE: ledgerMigrateSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		targetVersion := viper.GetInt("target-version")
		if err := ledger.MigrateLedger(os.Stdout, cfg.LedgerBackend, cfg.LedgerDBConnect, targetVersion); err != nil {
			contract.LogFatal("Failed to run migrations", err)
		}
	},
}
