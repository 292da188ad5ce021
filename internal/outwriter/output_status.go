package outwriter

import (
	"fmt"
	"io"
	"slices"

	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/schema"
)

const statusTimeFormat = "2006-01-02 15:04:05"

// WriteLedgerStatus prints execution ledger status information.
func WriteLedgerStatus(status schema.LedgerStatus, cfg *contract.Config) error {
	if cfg.Output == schema.JSONOut {
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, status)
		}, "Wrote JSON")
	}
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return writeLedgerStatusText(w, status)
	}, "Wrote text")
}

func writeLedgerStatusText(w io.Writer, status schema.LedgerStatus) error {
	lines := []string{
		fmt.Sprintf("Ledger Backend: %s", status.Backend),
		fmt.Sprintf("Connected: %t", status.Connected),
	}
	if status.Connected {
		lines = append(lines, fmt.Sprintf("Total Batches: %d", status.TotalBatches))
		if status.TotalBatches > 0 {
			lines = append(lines,
				fmt.Sprintf("Last Batch ID: %d", status.LastBatchID),
				fmt.Sprintf("Last Batch: %s", status.LastBatchTime.Format(statusTimeFormat)),
				fmt.Sprintf("Oldest Batch: %s", status.OldestBatch.Format(statusTimeFormat)),
			)
		}
		if len(status.StateCounts) > 0 {
			lines = append(lines, "Run Outcomes:")
			for _, state := range sortedKeys(status.StateCounts) {
				label := contract.GetColorLabel(schema.RunState(state))
				lines = append(lines, fmt.Sprintf("  %s: %d", label, status.StateCounts[state]))
			}
		}
		lines = append(lines, "Table Sizes:")
		for _, table := range sortedKeys(status.TableSizes) {
			lines = append(lines, fmt.Sprintf("  %s: %d rows", table, status.TableSizes[table]))
		}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
