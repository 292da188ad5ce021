// Package parquet exports execdiff ledger rows and depth reports to Parquet
// files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"time"

	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/parquet-go/parquet-go"
)

// Batch represents a single run or report invocation.
// This struct maps to the execdiff_batches database table.
type Batch struct {
	// BatchID is the ledger's identifier for the batch
	BatchID int64 `parquet:"batch_id,snappy"`

	// BatchUUID is the globally unique batch identifier
	BatchUUID string `parquet:"batch_uuid,snappy"`

	// Kind is either run or report
	Kind string `parquet:"kind,snappy"`

	StartTime    time.Time  `parquet:"start_time,snappy"`
	EndTime      *time.Time `parquet:"end_time,optional,snappy"`
	DurationMs   *int64     `parquet:"duration_ms,optional,snappy"`
	TotalItems   int32      `parquet:"total_items,snappy"`
	ConfigParams *string    `parquet:"config_params,optional,snappy"`
}

// Run represents the outcome of one (patch, depth) execution.
// This struct maps to the execdiff_runs database table.
type Run struct {
	BatchID     int64  `parquet:"batch_id,snappy"`
	PatchName   string `parquet:"patch_name,snappy"`
	Project     string `parquet:"project,snappy"`
	BugNumber   int32  `parquet:"bug_number,snappy"`
	Depth       int32  `parquet:"depth,snappy"`
	ArtifactKey string `parquet:"artifact_key,snappy"`

	// State is the terminal state of the run
	State string `parquet:"state,snappy"`

	// Trail is the comma-separated list of visited states
	Trail string `parquet:"trail,snappy"`

	ErrorMessage     *string   `parquet:"error_message,optional,snappy"`
	CollectorInvoked bool      `parquet:"collector_invoked,snappy"`
	AnalyzerInvoked  bool      `parquet:"analyzer_invoked,snappy"`
	RecordedAt       time.Time `parquet:"recorded_at,snappy"`
	DurationMs       int64     `parquet:"duration_ms,snappy"`
}

// DepthStats represents one aggregated row of a depth report.
// This struct maps to the execdiff_depth_stats database table.
type DepthStats struct {
	// BatchID is zero when the row comes straight from a report rather than the ledger
	BatchID    int64     `parquet:"batch_id,snappy"`
	RecordedAt time.Time `parquet:"recorded_at,snappy"`
	CorpusSize int32     `parquet:"corpus_size,snappy"`
	Depth      int32     `parquet:"depth,snappy"`

	Analyzed                int32 `parquet:"analyzed,snappy"`
	WithEmptySahabReport    int32 `parquet:"with_empty_sahab_report,snappy"`
	WithNonEmptySahabReport int32 `parquet:"with_not_empty_sahab_report,snappy"`
	WithManipulatedDiff     int32 `parquet:"with_manipulated_diff,snappy"`
	WithDiffGenerated       int32 `parquet:"with_diff_generated,snappy"`
	WithDistinctStatesAdded int32 `parquet:"with_distinct_states_added,snappy"`

	SahabTime             float64 `parquet:"sahab_time,snappy"`
	LineVarAndMappingTime float64 `parquet:"line_var_and_mapping_computation_time,snappy"`
	DiffComputationTime   float64 `parquet:"diff_computation_time,snappy"`
	UIManipulationTime    float64 `parquet:"ui_manipulation_time,snappy"`
}

// WriteBatchesParquet writes batches to a Parquet file.
func WriteBatchesParquet(data []Batch, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteRunsParquet writes runs to a Parquet file.
func WriteRunsParquet(data []Run, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteDepthStatsParquet writes depth statistics to a Parquet file.
func WriteDepthStatsParquet(data []DepthStats, outputPath string) error {
	return writeParquet(data, outputPath)
}

func writeParquet[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// The schema is derived from the struct tags of T
	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// ConvertBatchRecords converts ledger batch rows for Parquet export.
func ConvertBatchRecords(records []schema.BatchRecord) []Batch {
	result := make([]Batch, len(records))
	for i, r := range records {
		result[i] = Batch{
			BatchID:      r.BatchID,
			BatchUUID:    r.BatchUUID,
			Kind:         string(r.Kind),
			StartTime:    r.StartTime,
			EndTime:      r.EndTime,
			DurationMs:   r.DurationMs,
			TotalItems:   r.TotalItems,
			ConfigParams: r.ConfigParams,
		}
	}
	return result
}

// ConvertRunRows converts ledger run rows for Parquet export.
func ConvertRunRows(rows []schema.RunRow) []Run {
	result := make([]Run, len(rows))
	for i, r := range rows {
		result[i] = Run{
			BatchID:          r.BatchID,
			PatchName:        r.PatchName,
			Project:          r.Project,
			BugNumber:        r.BugNumber,
			Depth:            r.Depth,
			ArtifactKey:      r.ArtifactKey,
			State:            r.State,
			Trail:            r.Trail,
			ErrorMessage:     r.ErrorMessage,
			CollectorInvoked: r.CollectorInvoked,
			AnalyzerInvoked:  r.AnalyzerInvoked,
			RecordedAt:       r.RecordedAt,
			DurationMs:       r.DurationMs,
		}
	}
	return result
}

// ConvertDepthStatsRows converts ledger depth statistics rows for Parquet export.
func ConvertDepthStatsRows(rows []schema.DepthStatsRow) []DepthStats {
	result := make([]DepthStats, len(rows))
	for i, r := range rows {
		result[i] = fromStatistics(r.BatchID, r.RecordedAt, int(r.CorpusSize), r.DepthStatistics)
	}
	return result
}

// ConvertReport flattens a corpus report into one row per depth.
func ConvertReport(report *schema.CorpusReport) []DepthStats {
	result := make([]DepthStats, len(report.Depths))
	for i, s := range report.Depths {
		result[i] = fromStatistics(0, report.GeneratedAt, report.CorpusSize, s)
	}
	return result
}

func fromStatistics(batchID int64, at time.Time, corpusSize int, s schema.DepthStatistics) DepthStats {
	return DepthStats{
		BatchID:                 batchID,
		RecordedAt:              at,
		CorpusSize:              int32(corpusSize),
		Depth:                   int32(s.Depth),
		Analyzed:                int32(s.Analyzed),
		WithEmptySahabReport:    int32(s.WithEmptySahabReport),
		WithNonEmptySahabReport: int32(s.WithNonEmptySahabReport),
		WithManipulatedDiff:     int32(s.WithManipulatedDiff),
		WithDiffGenerated:       int32(s.WithDiffGenerated),
		WithDistinctStatesAdded: int32(s.WithDistinctStatesAdded),
		SahabTime:               s.SahabTime,
		LineVarAndMappingTime:   s.LineVarAndMappingTime,
		DiffComputationTime:     s.DiffComputationTime,
		UIManipulationTime:      s.UIManipulationTime,
	}
}
