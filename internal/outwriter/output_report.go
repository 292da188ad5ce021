package outwriter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/internal/parquet"
	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// ReportHeader is the fixed column order of the canonical report.
var ReportHeader = []string{
	"depth",
	"#analyzed",
	"#with_empty_sahab_report",
	"#with_not_empty_sahab_report",
	"#with_manipulated_diff",
	"#with_diff_generated",
	"#with_distinct_states_added",
	"sahab_time",
	"line_var_and_mapping_computation_time",
	"diff_computation_time",
	"ui_manipulation_time",
}

// WriteReport outputs a corpus report, dispatching based on the output format configured.
func WriteReport(report *schema.CorpusReport, cfg *contract.Config) error {
	switch cfg.Output {
	case schema.JSONOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeJSON(w, report)
		}, "Wrote JSON")
	case schema.CSVOut:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeReportCSV(w, report)
		}, "Wrote CSV")
	case schema.ParquetOut:
		if err := parquet.WriteDepthStatsParquet(parquet.ConvertReport(report), cfg.OutputFile); err != nil {
			return fmt.Errorf("error writing parquet output: %w", err)
		}
		fmt.Fprintf(os.Stderr, "💾 Wrote parquet to %s\n", cfg.OutputFile)
		return nil
	default:
		return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
			return writeReportTable(w, report, cfg)
		}, "Wrote table")
	}
}

// writeReportCSV writes the canonical report: the corpus size line, the fixed
// header, then one row per depth. Averages are printed exactly.
func writeReportCSV(w io.Writer, report *schema.CorpusReport) error {
	if _, err := fmt.Fprintf(w, "Number of commits with reports: %d\n", report.CorpusSize); err != nil {
		return err
	}
	return writeCSVWithHeader(w, ReportHeader, func(cw *csv.Writer) error {
		for _, s := range report.Depths {
			if err := cw.Write(reportRecord(s)); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
		return nil
	})
}

func reportRecord(s schema.DepthStatistics) []string {
	return []string{
		strconv.Itoa(int(s.Depth)),
		strconv.Itoa(s.Analyzed),
		strconv.Itoa(s.WithEmptySahabReport),
		strconv.Itoa(s.WithNonEmptySahabReport),
		strconv.Itoa(s.WithManipulatedDiff),
		strconv.Itoa(s.WithDiffGenerated),
		strconv.Itoa(s.WithDistinctStatesAdded),
		formatExactFloat(s.SahabTime),
		formatExactFloat(s.LineVarAndMappingTime),
		formatExactFloat(s.DiffComputationTime),
		formatExactFloat(s.UIManipulationTime),
	}
}

// writeReportTable generates and writes the human-readable table.
func writeReportTable(w io.Writer, report *schema.CorpusReport, cfg *contract.Config) error {
	fmtFloat, intFmt := createFormatters(cfg.Precision)

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Depth", "Analyzed", "Empty Sahab", "Sahab", "Manipulated", "Diffs", "Distinct States", "Sahab Time", "Line/Var Time", "Diff Time", "UI Time"})
	table.Configure(func(c *tablewriter.Config) {
		c.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, s := range report.Depths {
		data = append(data, []string{
			fmt.Sprintf(intFmt, s.Depth),
			fmt.Sprintf(intFmt, s.Analyzed),
			fmt.Sprintf(intFmt, s.WithEmptySahabReport),
			fmt.Sprintf(intFmt, s.WithNonEmptySahabReport),
			fmt.Sprintf(intFmt, s.WithManipulatedDiff),
			fmt.Sprintf(intFmt, s.WithDiffGenerated),
			fmt.Sprintf(intFmt, s.WithDistinctStatesAdded),
			fmtFloat(s.SahabTime),
			fmtFloat(s.LineVarAndMappingTime),
			fmtFloat(s.DiffComputationTime),
			fmtFloat(s.UIManipulationTime),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "Comparable corpus: %d commits (reference depth %d)\n", report.CorpusSize, report.ReferenceDepth); err != nil {
		return err
	}
	if n := len(report.Diagnostics); n > 0 {
		if _, err := fmt.Fprintf(w, "%s %d diagnostics raised while aggregating; use --output json to list them\n", contract.SkippedColor.Sprint("!"), n); err != nil {
			return err
		}
	}
	return nil
}
