package schema

// Custom string types for type safety.
type (
	// OutputMode represents the format of the output.
	OutputMode string

	// DatabaseBackend represents the database backend for the execution ledger.
	DatabaseBackend string

	// ArtifactKind names one of the fixed artifact kinds a run can produce.
	ArtifactKind string

	// RecordKind names the timing fact a log line carries.
	RecordKind string

	// RunState is a state of the per-patch pipeline.
	RunState string

	// BatchKind tells apart ledger batches produced by pipeline runs and reports.
	BatchKind string
)

// All output modes supported.
const (
	CSVOut     OutputMode = "csv"
	TextOut    OutputMode = "text" // default
	JSONOut    OutputMode = "json"
	ParquetOut OutputMode = "parquet"
)

// All ledger backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite" // default
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// Artifact kinds, located by (commit, depth, kind).
const (
	TraceLog             ArtifactKind = "trace_log"              // logs/sahab_<commit>.log
	DiffComputerErrorLog ArtifactKind = "diff_computer_err"      // logs/diff_computer_<commit>.err
	SahabReportLeft      ArtifactKind = "sahab_report_left"      // sahab-reports/<commit>/left.json
	SahabReportRight     ArtifactKind = "sahab_report_right"     // sahab-reports/<commit>/right.json
	StateDiffReport      ArtifactKind = "state_diff"             // state_diffs/state_diff_<commit>.html
	ManipulationFlag     ArtifactKind = "ui_manipulation_marker" // any file under logs/ mentioning UI manipulation
)

// Timing facts extracted from trace and analyzer logs.
const (
	SahabTime           RecordKind = "sahab_time"
	DiffComputationTime RecordKind = "diff_computation_time"
	LineVarMappingTime  RecordKind = "line_var_and_mapping_computation_time"
	UIManipulationTime  RecordKind = "ui_manipulation_time"
)

// Pipeline states in transition order, followed by the two absorbing outcomes.
const (
	NotStarted               RunState = "not_started"
	CheckedOut               RunState = "checked_out"
	PatchApplicationVerified RunState = "patch_application_verified"
	TreesMaterialized        RunState = "trees_materialized"
	TraceCollected           RunState = "trace_collected"
	AnalysisInvoked          RunState = "analysis_invoked"
	Done                     RunState = "done"
	Skipped                  RunState = "skipped"
	Failed                   RunState = "failed"
)

// Ledger batch kinds.
const (
	RunBatch    BatchKind = "run"
	ReportBatch BatchKind = "report"
)

// AllRecordKinds lists record kinds in report column order.
var AllRecordKinds = []RecordKind{SahabTime, LineVarMappingTime, DiffComputationTime, UIManipulationTime}

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	CSVOut:     {},
	TextOut:    {},
	JSONOut:    {},
	ParquetOut: {},
}

// ValidDatabaseBackends lists all valid ledger backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// IsTerminal reports whether no further transition leaves the state.
func (s RunState) IsTerminal() bool {
	return s == Done || s == Skipped || s == Failed
}

// Diagnostic kinds raised while aggregating.
const (
	MissingArtifactDiagnostic = "missing-artifact"
	MalformedLogDiagnostic    = "malformed-log"
)
