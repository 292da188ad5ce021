package schema

import (
	"strings"
	"time"
)

// BatchRecord represents a row from the execdiff_batches table.
type BatchRecord struct {
	BatchID      int64
	BatchUUID    string
	Kind         BatchKind
	StartTime    time.Time
	EndTime      *time.Time
	DurationMs   *int64
	TotalItems   int32
	ConfigParams *string
}

// RunRow represents a row from the execdiff_runs table.
type RunRow struct {
	BatchID          int64
	PatchName        string
	Project          string
	BugNumber        int32
	Depth            int32
	ArtifactKey      string
	State            string
	Trail            string
	ErrorMessage     *string
	CollectorInvoked bool
	AnalyzerInvoked  bool
	RecordedAt       time.Time
	DurationMs       int64
}

// DepthStatsRow represents a row from the execdiff_depth_stats table.
type DepthStatsRow struct {
	BatchID    int64
	CorpusSize int32
	RecordedAt time.Time
	DepthStatistics
}

// NewRunRow flattens a run outcome into its ledger row.
func NewRunRow(batchID int64, r RunRecord, recordedAt time.Time) RunRow {
	trail := make([]string, len(r.Trail))
	for i, s := range r.Trail {
		trail[i] = string(s)
	}
	row := RunRow{
		BatchID:          batchID,
		PatchName:        r.Patch.Name,
		Project:          r.Patch.Bug.Project,
		BugNumber:        int32(r.Patch.Bug.Number),
		Depth:            int32(r.Depth),
		ArtifactKey:      string(r.Key),
		State:            string(r.State),
		Trail:            strings.Join(trail, ","),
		CollectorInvoked: r.CollectorInvoked,
		AnalyzerInvoked:  r.AnalyzerInvoked,
		RecordedAt:       recordedAt,
		DurationMs:       r.Duration.Milliseconds(),
	}
	if r.Err != "" {
		msg := r.Err
		row.ErrorMessage = &msg
	}
	return row
}
