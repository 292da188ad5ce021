package ledger

import (
	"errors"
	"fmt"
	"io"

	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/internal/parquet"
)

// ExecuteLedgerExport writes every ledger table to Parquet files named
// outputFile.<table>.parquet.
func ExecuteLedgerExport(w io.Writer, mgr contract.LedgerManager, outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}

	store := mgr.GetLedgerStore()
	if store == nil {
		return errors.New("ledger is not initialized")
	}

	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get ledger status: %w", err)
	}
	if status.TotalBatches == 0 {
		return errors.New("no ledger data found to export")
	}

	_, _ = fmt.Fprintf(w, "Exporting data from %s backend...\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Total batches: %d\n", status.TotalBatches)
	_, _ = fmt.Fprintf(w, "Total runs: %d\n", status.TableSizes[runsTable])

	batches, err := store.GetAllBatches()
	if err != nil {
		return fmt.Errorf("failed to retrieve batches: %w", err)
	}
	runs, err := store.GetAllRuns()
	if err != nil {
		return fmt.Errorf("failed to retrieve runs: %w", err)
	}
	depthStats, err := store.GetAllDepthStats()
	if err != nil {
		return fmt.Errorf("failed to retrieve depth statistics: %w", err)
	}

	batchesFile := outputFile + ".batches.parquet"
	if err := parquet.WriteBatchesParquet(parquet.ConvertBatchRecords(batches), batchesFile); err != nil {
		return fmt.Errorf("failed to write batches: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d batches to: %s\n", len(batches), batchesFile)

	runsFile := outputFile + ".runs.parquet"
	if err := parquet.WriteRunsParquet(parquet.ConvertRunRows(runs), runsFile); err != nil {
		return fmt.Errorf("failed to write runs: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d runs to: %s\n", len(runs), runsFile)

	depthStatsFile := outputFile + ".depth_stats.parquet"
	if err := parquet.WriteDepthStatsParquet(parquet.ConvertDepthStatsRows(depthStats), depthStatsFile); err != nil {
		return fmt.Errorf("failed to write depth statistics: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d depth statistics rows to: %s\n", len(depthStats), depthStatsFile)

	_, _ = fmt.Fprintln(w, "\nExport complete! The Parquet files can be read with DuckDB, Pandas (via pyarrow) or Spark.")
	return nil
}
