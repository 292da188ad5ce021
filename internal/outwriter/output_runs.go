package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/internal/parquet"
	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

const shortKeyLen = 10

// WriteRuns outputs pipeline run outcomes using the configured output format.
func WriteRuns(records []schema.RunRecord, cfg *contract.Config, duration time.Duration) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, records)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeRunsCSV(w, records)
		}, "Wrote CSV")
	case schema.ParquetOut:
		now := time.Now()
		rows := make([]schema.RunRow, len(records))
		for i, r := range records {
			rows[i] = schema.NewRunRow(0, r, now)
		}
		if err := parquet.WriteRunsParquet(parquet.ConvertRunRows(rows), cfg.OutputFile); err != nil {
			return fmt.Errorf("error writing parquet output: %w", err)
		}
		fmt.Fprintf(os.Stderr, "💾 Wrote parquet to %s\n", cfg.OutputFile)
		return nil
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeRunsTable(w, records, cfg, duration)
		}, "Wrote table")
	}
}

func writeRunsCSV(w io.Writer, records []schema.RunRecord) error {
	header := []string{"patch", "project", "bug", "depth", "key", "state", "collector_invoked", "analyzer_invoked", "duration_ms", "error"}
	return writeCSVWithHeader(w, header, func(cw *csv.Writer) error {
		for _, r := range records {
			rec := []string{
				r.Patch.Name,
				r.Patch.Bug.Project,
				strconv.Itoa(r.Patch.Bug.Number),
				strconv.Itoa(int(r.Depth)),
				string(r.Key),
				contract.GetPlainLabel(r.State),
				strconv.FormatBool(r.CollectorInvoked),
				strconv.FormatBool(r.AnalyzerInvoked),
				strconv.FormatInt(r.Duration.Milliseconds(), 10),
				r.Err,
			}
			if err := cw.Write(rec); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
		return nil
	})
}

func writeRunsTable(w io.Writer, records []schema.RunRecord, cfg *contract.Config, duration time.Duration) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Patch", "Depth", "Commit", "Outcome", "Reached", "Tools", "Time", "Error"})
	table.Configure(func(c *tablewriter.Config) {
		c.Row.Alignment.Global = tw.AlignLeft
	})

	width := GetMaxTablePathWidth(cfg)
	counts := make(map[string]int)
	var data [][]string
	for _, r := range records {
		counts[contract.GetPlainLabel(r.State)]++
		data = append(data, []string{
			contract.TruncatePath(r.Patch.Name, width),
			strconv.Itoa(int(r.Depth)),
			shortKey(r.Key),
			contract.GetColorLabel(r.State),
			string(lastProgress(r)),
			toolsLabel(r),
			r.Duration.Round(time.Millisecond).String(),
			contract.TruncatePath(r.Err, width),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "%d runs: %d done, %d skipped, %d failed\n",
		len(records), counts[contract.DoneValue], counts[contract.SkippedValue], counts[contract.FailedValue]); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Pipeline completed in %v with %d workers. Ledger backend: %s\n", duration, cfg.Workers, cfg.LedgerBackend); err != nil {
		return err
	}
	return nil
}

// lastProgress returns the furthest non-terminal state a run reached.
func lastProgress(r schema.RunRecord) schema.RunState {
	for i := len(r.Trail) - 1; i >= 0; i-- {
		if !r.Trail[i].IsTerminal() {
			return r.Trail[i]
		}
	}
	return schema.NotStarted
}

func toolsLabel(r schema.RunRecord) string {
	switch {
	case r.CollectorInvoked && r.AnalyzerInvoked:
		return "collector+analyzer"
	case r.CollectorInvoked:
		return "collector"
	case r.AnalyzerInvoked:
		return "analyzer"
	default:
		return "-"
	}
}

func shortKey(k schema.ArtifactKey) string {
	s := string(k)
	if len(s) > shortKeyLen {
		return s[:shortKeyLen]
	}
	return s
}
