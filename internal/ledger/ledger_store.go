package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/schema"
	_ "modernc.org/sqlite" // SQLite driver
)

// Table names for the execution ledger.
const (
	batchesTable    = "execdiff_batches"
	runsTable       = "execdiff_runs"
	depthStatsTable = "execdiff_depth_stats"
)

// LedgerTables lists the ledger tables in creation order.
var LedgerTables = []string{batchesTable, runsTable, depthStatsTable}

// LedgerStoreImpl implements the LedgerStore interface.
type LedgerStoreImpl struct {
	db         *sql.DB
	backend    schema.DatabaseBackend
	driverName string
}

var _ contract.LedgerStore = &LedgerStoreImpl{} // Compile-time check

// NewLedgerStore creates a new LedgerStore with the specified backend.
func NewLedgerStore(backend schema.DatabaseBackend, connStr string) (contract.LedgerStore, error) {
	if backend == schema.NoneBackend {
		// No-op store for disabled tracking
		return &LedgerStoreImpl{backend: backend}, nil
	}

	db, driverName, err := openDB(backend, connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		var connDetail string
		switch backend {
		case schema.MySQLBackend:
			connDetail = "Check that MySQL is running and the connection string is correct. Ensure parseTime=true is set."
		case schema.PostgreSQLBackend:
			connDetail = "Check that PostgreSQL is running and the connection string is correct. Ensure user/password are valid."
		default:
			connDetail = "Verify the database file is writable."
		}
		return nil, fmt.Errorf("failed to connect to %s database: %w. %s", backend, err, connDetail)
	}

	if err := createLedgerTables(db, backend); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create ledger tables: %w", err)
	}

	return &LedgerStoreImpl{
		db:         db,
		backend:    backend,
		driverName: driverName,
	}, nil
}

// openDB opens a handle for the backend without verifying the connection.
func openDB(backend schema.DatabaseBackend, connStr string) (*sql.DB, string, error) {
	switch backend {
	case schema.SQLiteBackend:
		dbPath := connStr
		if dbPath == "" {
			dbPath = GetDBFilePath()
		}
		db, err := sql.Open("sqlite", dbPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open SQLite database at %q: %w. Check that the directory is writable", dbPath, err)
		}
		// Limit SQLite to a single open connection to avoid "database is locked" errors
		db.SetMaxOpenConns(1)
		return db, "sqlite", nil

	case schema.MySQLBackend:
		db, err := sql.Open("mysql", connStr)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open MySQL database: %w. Check connection string format: user:password@tcp(host:port)/dbname?parseTime=true", err)
		}
		return db, "mysql", nil

	case schema.PostgreSQLBackend:
		db, err := sql.Open("pgx", connStr)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open PostgreSQL database: %w. Check connection string format: host=... dbname=... user=...", err)
		}
		return db, "pgx", nil

	default:
		return nil, "", fmt.Errorf("unsupported backend: %s", backend)
	}
}

// createLedgerTables creates the ledger tables.
func createLedgerTables(db *sql.DB, backend schema.DatabaseBackend) error {
	for _, table := range LedgerTables {
		if err := validateTableName(table); err != nil {
			return err
		}
		if _, err := db.Exec(createTableQuery(table, backend)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
	}
	return nil
}

// createTableQuery returns the CREATE TABLE statement of a ledger table.
func createTableQuery(table string, backend schema.DatabaseBackend) string {
	quoted := quoteTableName(table, backend)
	switch table {
	case batchesTable:
		switch backend {
		case schema.MySQLBackend:
			return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				batch_id BIGINT AUTO_INCREMENT PRIMARY KEY,
				batch_uuid CHAR(36) NOT NULL,
				kind VARCHAR(16) NOT NULL,
				start_time DATETIME(6) NOT NULL,
				end_time DATETIME(6),
				duration_ms BIGINT,
				total_items INT NOT NULL DEFAULT 0,
				config_params TEXT
			);`, quoted)
		case schema.PostgreSQLBackend:
			return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				batch_id BIGSERIAL PRIMARY KEY,
				batch_uuid TEXT NOT NULL,
				kind TEXT NOT NULL,
				start_time TIMESTAMPTZ NOT NULL,
				end_time TIMESTAMPTZ,
				duration_ms BIGINT,
				total_items INT NOT NULL DEFAULT 0,
				config_params TEXT
			);`, quoted)
		default: // SQLite
			return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				batch_id INTEGER PRIMARY KEY AUTOINCREMENT,
				batch_uuid TEXT NOT NULL,
				kind TEXT NOT NULL,
				start_time TEXT NOT NULL,
				end_time TEXT,
				duration_ms INTEGER,
				total_items INTEGER NOT NULL DEFAULT 0,
				config_params TEXT
			);`, quoted)
		}

	case runsTable:
		switch backend {
		case schema.MySQLBackend:
			return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				batch_id BIGINT NOT NULL,
				patch_name VARCHAR(255) NOT NULL,
				project VARCHAR(64) NOT NULL,
				bug_number INT NOT NULL,
				depth INT NOT NULL,
				artifact_key VARCHAR(64) NOT NULL,
				state VARCHAR(64) NOT NULL,
				trail TEXT NOT NULL,
				error_message TEXT,
				collector_invoked BOOLEAN NOT NULL,
				analyzer_invoked BOOLEAN NOT NULL,
				recorded_at DATETIME(6) NOT NULL,
				duration_ms BIGINT NOT NULL,
				PRIMARY KEY (batch_id, patch_name, depth)
			);`, quoted)
		case schema.PostgreSQLBackend:
			return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				batch_id BIGINT NOT NULL,
				patch_name TEXT NOT NULL,
				project TEXT NOT NULL,
				bug_number INT NOT NULL,
				depth INT NOT NULL,
				artifact_key TEXT NOT NULL,
				state TEXT NOT NULL,
				trail TEXT NOT NULL,
				error_message TEXT,
				collector_invoked BOOLEAN NOT NULL,
				analyzer_invoked BOOLEAN NOT NULL,
				recorded_at TIMESTAMPTZ NOT NULL,
				duration_ms BIGINT NOT NULL,
				PRIMARY KEY (batch_id, patch_name, depth)
			);`, quoted)
		default: // SQLite
			return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				batch_id INTEGER NOT NULL,
				patch_name TEXT NOT NULL,
				project TEXT NOT NULL,
				bug_number INTEGER NOT NULL,
				depth INTEGER NOT NULL,
				artifact_key TEXT NOT NULL,
				state TEXT NOT NULL,
				trail TEXT NOT NULL,
				error_message TEXT,
				collector_invoked BOOLEAN NOT NULL,
				analyzer_invoked BOOLEAN NOT NULL,
				recorded_at TEXT NOT NULL,
				duration_ms INTEGER NOT NULL,
				PRIMARY KEY (batch_id, patch_name, depth)
			);`, quoted)
		}

	default: // depthStatsTable
		intType, floatType, timeType := "INTEGER", "REAL", "TEXT"
		switch backend {
		case schema.MySQLBackend:
			intType, floatType, timeType = "INT", "DOUBLE", "DATETIME(6)"
		case schema.PostgreSQLBackend:
			intType, floatType, timeType = "INT", "DOUBLE PRECISION", "TIMESTAMPTZ"
		}
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %[1]s (
				batch_id BIGINT NOT NULL,
				depth %[2]s NOT NULL,
				corpus_size %[2]s NOT NULL,
				recorded_at %[4]s NOT NULL,
				analyzed %[2]s NOT NULL,
				with_empty_sahab_report %[2]s NOT NULL,
				with_not_empty_sahab_report %[2]s NOT NULL,
				with_manipulated_diff %[2]s NOT NULL,
				with_diff_generated %[2]s NOT NULL,
				with_distinct_states_added %[2]s NOT NULL,
				sahab_time %[3]s NOT NULL,
				line_var_and_mapping_computation_time %[3]s NOT NULL,
				diff_computation_time %[3]s NOT NULL,
				ui_manipulation_time %[3]s NOT NULL,
				PRIMARY KEY (batch_id, depth)
			);`, quoted, intType, floatType, timeType)
	}
}

func (ls *LedgerStoreImpl) disabled() bool {
	return ls.backend == schema.NoneBackend || ls.db == nil
}

// BeginBatch creates a new batch and returns its unique ID.
func (ls *LedgerStoreImpl) BeginBatch(kind schema.BatchKind, startTime time.Time, configParams map[string]any) (int64, error) {
	if ls.disabled() {
		return 0, nil
	}

	configJSON, err := json.Marshal(configParams)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal config params: %w", err)
	}

	quoted := quoteTableName(batchesTable, ls.backend)
	cols := "batch_uuid, kind, start_time, config_params"
	args := []any{uuid.NewString(), string(kind), formatTime(startTime, ls.backend), string(configJSON)}

	var batchID int64
	switch ls.backend {
	case schema.PostgreSQLBackend:
		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING batch_id`, quoted, cols, placeholders(ls.backend, len(args)))
		err = ls.db.QueryRow(query, args...).Scan(&batchID)
	default: // SQLite and MySQL
		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, quoted, cols, placeholders(ls.backend, len(args)))
		var result sql.Result
		result, err = ls.db.Exec(query, args...)
		if err == nil {
			batchID, err = result.LastInsertId()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert batch: %w", err)
	}
	return batchID, nil
}

// EndBatch updates the batch with completion data.
func (ls *LedgerStoreImpl) EndBatch(batchID int64, endTime time.Time, totalItems int) error {
	if ls.disabled() {
		return nil
	}

	quoted := quoteTableName(batchesTable, ls.backend)
	query := fmt.Sprintf(`SELECT start_time FROM %s WHERE batch_id = %s`, quoted, placeholders(ls.backend, 1))
	start := newTimeScanner(ls.backend)
	if err := ls.db.QueryRow(query, batchID).Scan(start.dest()); err != nil {
		return fmt.Errorf("failed to get start_time for batch %d: %w", batchID, err)
	}
	startTime, err := start.value()
	if err != nil {
		return fmt.Errorf("failed to parse start_time: %w", err)
	}

	var update string
	if ls.backend == schema.PostgreSQLBackend {
		update = fmt.Sprintf(`UPDATE %s SET end_time = $1, duration_ms = $2, total_items = $3 WHERE batch_id = $4`, quoted)
	} else {
		update = fmt.Sprintf(`UPDATE %s SET end_time = ?, duration_ms = ?, total_items = ? WHERE batch_id = ?`, quoted)
	}
	durationMs := endTime.Sub(startTime).Milliseconds()
	if _, err := ls.db.Exec(update, formatTime(endTime, ls.backend), durationMs, totalItems, batchID); err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	return nil
}

// RecordRun stores the outcome of one execution run.
func (ls *LedgerStoreImpl) RecordRun(batchID int64, rec schema.RunRecord) error {
	if ls.disabled() {
		return nil
	}

	row := schema.NewRunRow(batchID, rec, time.Now())
	quoted := quoteTableName(runsTable, ls.backend)
	cols := `batch_id, patch_name, project, bug_number, depth, artifact_key, state, trail,
		error_message, collector_invoked, analyzer_invoked, recorded_at, duration_ms`
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, quoted, cols, placeholders(ls.backend, 13))
	args := []any{
		row.BatchID, row.PatchName, row.Project, row.BugNumber, row.Depth, row.ArtifactKey, row.State, row.Trail,
		row.ErrorMessage, row.CollectorInvoked, row.AnalyzerInvoked, formatTime(row.RecordedAt, ls.backend), row.DurationMs,
	}
	if _, err := ls.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to insert run %s at depth %d: %w", row.PatchName, row.Depth, err)
	}
	return nil
}

// RecordDepthStatistics stores one aggregated depth row.
func (ls *LedgerStoreImpl) RecordDepthStatistics(batchID int64, corpusSize int, s schema.DepthStatistics) error {
	if ls.disabled() {
		return nil
	}

	quoted := quoteTableName(depthStatsTable, ls.backend)
	cols := `batch_id, depth, corpus_size, recorded_at, analyzed, with_empty_sahab_report,
		with_not_empty_sahab_report, with_manipulated_diff, with_diff_generated, with_distinct_states_added,
		sahab_time, line_var_and_mapping_computation_time, diff_computation_time, ui_manipulation_time`
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, quoted, cols, placeholders(ls.backend, 14))
	args := []any{
		batchID, int(s.Depth), corpusSize, formatTime(time.Now(), ls.backend), s.Analyzed, s.WithEmptySahabReport,
		s.WithNonEmptySahabReport, s.WithManipulatedDiff, s.WithDiffGenerated, s.WithDistinctStatesAdded,
		s.SahabTime, s.LineVarAndMappingTime, s.DiffComputationTime, s.UIManipulationTime,
	}
	if _, err := ls.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to insert depth %d statistics: %w", s.Depth, err)
	}
	return nil
}

// Close closes the underlying connection.
func (ls *LedgerStoreImpl) Close() error {
	if ls.db != nil {
		return ls.db.Close()
	}
	return nil
}

// GetStatus returns status information about the ledger.
func (ls *LedgerStoreImpl) GetStatus() (schema.LedgerStatus, error) {
	status := schema.LedgerStatus{
		Backend:     string(ls.backend),
		Connected:   ls.db != nil,
		StateCounts: make(map[string]int64),
		TableSizes:  make(map[string]int64),
	}
	if ls.disabled() {
		return status, nil
	}

	batches := quoteTableName(batchesTable, ls.backend)
	if err := ls.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", batches)).Scan(&status.TotalBatches); err != nil {
		return status, fmt.Errorf("failed to get total batches: %w", err)
	}

	if status.TotalBatches > 0 {
		last := newTimeScanner(ls.backend)
		query := fmt.Sprintf("SELECT batch_id, start_time FROM %s ORDER BY batch_id DESC LIMIT 1", batches)
		if err := ls.db.QueryRow(query).Scan(&status.LastBatchID, last.dest()); err != nil {
			return status, fmt.Errorf("failed to get last batch info: %w", err)
		}
		t, err := last.value()
		if err != nil {
			return status, fmt.Errorf("failed to parse last batch time: %w", err)
		}
		status.LastBatchTime = t

		oldest := newTimeScanner(ls.backend)
		query = fmt.Sprintf("SELECT start_time FROM %s ORDER BY batch_id ASC LIMIT 1", batches)
		if err := ls.db.QueryRow(query).Scan(oldest.dest()); err != nil {
			return status, fmt.Errorf("failed to get oldest batch time: %w", err)
		}
		if t, err = oldest.value(); err != nil {
			return status, fmt.Errorf("failed to parse oldest batch time: %w", err)
		}
		status.OldestBatch = t
	}

	rows, err := ls.db.Query(fmt.Sprintf("SELECT state, COUNT(*) FROM %s GROUP BY state", quoteTableName(runsTable, ls.backend)))
	if err != nil {
		return status, fmt.Errorf("failed to count run states: %w", err)
	}
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			_ = rows.Close()
			return status, fmt.Errorf("failed to scan run state count: %w", err)
		}
		status.StateCounts[state] = n
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return status, fmt.Errorf("error iterating run states: %w", err)
	}

	for _, table := range LedgerTables {
		var count int64
		if err := ls.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteTableName(table, ls.backend))).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}

	return status, nil
}

// GetAllBatches retrieves all batches ordered by ID.
func (ls *LedgerStoreImpl) GetAllBatches() ([]schema.BatchRecord, error) {
	if ls.disabled() {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT batch_id, batch_uuid, kind, start_time, end_time, duration_ms, total_items, config_params
		FROM %s ORDER BY batch_id`, quoteTableName(batchesTable, ls.backend))
	rows, err := ls.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.BatchRecord
	for rows.Next() {
		var record schema.BatchRecord
		var kind string
		start := newTimeScanner(ls.backend)
		end := newNullTimeScanner(ls.backend)
		if err := rows.Scan(&record.BatchID, &record.BatchUUID, &kind, start.dest(), end.dest(),
			&record.DurationMs, &record.TotalItems, &record.ConfigParams); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		record.Kind = schema.BatchKind(kind)
		if record.StartTime, err = start.value(); err != nil {
			return nil, fmt.Errorf("failed to parse start_time: %w", err)
		}
		if record.EndTime, err = end.value(); err != nil {
			return nil, fmt.Errorf("failed to parse end_time: %w", err)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}
	return results, nil
}

// GetAllRuns retrieves all recorded runs.
func (ls *LedgerStoreImpl) GetAllRuns() ([]schema.RunRow, error) {
	if ls.disabled() {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT batch_id, patch_name, project, bug_number, depth, artifact_key, state, trail,
		error_message, collector_invoked, analyzer_invoked, recorded_at, duration_ms
		FROM %s ORDER BY batch_id, depth, patch_name`, quoteTableName(runsTable, ls.backend))
	rows, err := ls.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.RunRow
	for rows.Next() {
		var r schema.RunRow
		at := newTimeScanner(ls.backend)
		if err := rows.Scan(&r.BatchID, &r.PatchName, &r.Project, &r.BugNumber, &r.Depth, &r.ArtifactKey, &r.State, &r.Trail,
			&r.ErrorMessage, &r.CollectorInvoked, &r.AnalyzerInvoked, at.dest(), &r.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.RecordedAt, err = at.value(); err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return results, nil
}

// GetAllDepthStats retrieves all recorded depth statistics.
func (ls *LedgerStoreImpl) GetAllDepthStats() ([]schema.DepthStatsRow, error) {
	if ls.disabled() {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT batch_id, depth, corpus_size, recorded_at, analyzed, with_empty_sahab_report,
		with_not_empty_sahab_report, with_manipulated_diff, with_diff_generated, with_distinct_states_added,
		sahab_time, line_var_and_mapping_computation_time, diff_computation_time, ui_manipulation_time
		FROM %s ORDER BY batch_id, depth`, quoteTableName(depthStatsTable, ls.backend))
	rows, err := ls.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query depth statistics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.DepthStatsRow
	for rows.Next() {
		var r schema.DepthStatsRow
		var depth int
		at := newTimeScanner(ls.backend)
		if err := rows.Scan(&r.BatchID, &depth, &r.CorpusSize, at.dest(), &r.Analyzed, &r.WithEmptySahabReport,
			&r.WithNonEmptySahabReport, &r.WithManipulatedDiff, &r.WithDiffGenerated, &r.WithDistinctStatesAdded,
			&r.SahabTime, &r.LineVarAndMappingTime, &r.DiffComputationTime, &r.UIManipulationTime); err != nil {
			return nil, fmt.Errorf("failed to scan depth statistics: %w", err)
		}
		r.Depth = schema.Depth(depth)
		if r.RecordedAt, err = at.value(); err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating depth statistics: %w", err)
	}
	return results, nil
}
