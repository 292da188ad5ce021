package ledger

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun(name string, depth schema.Depth, final schema.RunState) schema.RunRecord {
	patch, _ := schema.ParsePatchID(name)
	rec := schema.RunRecord{Patch: patch, Depth: depth, Duration: 1500 * time.Millisecond}
	rec.Advance(schema.NotStarted)
	rec.Advance(schema.CheckedOut)
	if final == schema.Done {
		rec.Key = "0123456789abcdef"
		rec.CollectorInvoked = true
		rec.AnalyzerInvoked = true
	} else {
		rec.Err = "checkout failed"
	}
	rec.Advance(final)
	return rec
}

func TestLedgerStore_NoneBackend(t *testing.T) {
	store, err := NewLedgerStore(schema.NoneBackend, "")
	require.NoError(t, err)
	require.NotNil(t, store)

	batchID, err := store.BeginBatch(schema.RunBatch, time.Now(), map[string]any{"workers": 2})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), batchID)

	assert.NoError(t, store.EndBatch(1, time.Now(), 10))
	assert.NoError(t, store.RecordRun(1, sampleRun("patch1-Time-5-Arja", 0, schema.Done)))
	assert.NoError(t, store.RecordDepthStatistics(1, 3, schema.DepthStatistics{}))

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, "none", status.Backend)
	assert.False(t, status.Connected)

	runs, err := store.GetAllRuns()
	assert.NoError(t, err)
	assert.Empty(t, runs)

	assert.NoError(t, store.Close())
}

func TestLedgerStore_SQLite(t *testing.T) {
	store, err := NewLedgerStore(schema.SQLiteBackend, ":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	start := time.Now().Add(-2 * time.Second).Round(0)
	batchID, err := store.BeginBatch(schema.RunBatch, start, map[string]any{"workers": 2})
	require.NoError(t, err)
	assert.Greater(t, batchID, int64(0))

	require.NoError(t, store.RecordRun(batchID, sampleRun("patch1-Time-5-Arja", 1, schema.Done)))
	require.NoError(t, store.RecordRun(batchID, sampleRun("patch2-Time-5-Kali", 0, schema.Failed)))

	// A (patch, depth) pair is recorded once per batch.
	assert.Error(t, store.RecordRun(batchID, sampleRun("patch1-Time-5-Arja", 1, schema.Done)))

	stats := schema.DepthStatistics{
		Depth:                   1,
		Analyzed:                4,
		WithNonEmptySahabReport: 3,
		WithDiffGenerated:       2,
		SahabTime:               12.5,
		DiffComputationTime:     0.25,
	}
	require.NoError(t, store.RecordDepthStatistics(batchID, 2, stats))

	batches, err := store.GetAllBatches()
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Nil(t, batches[0].EndTime)
	assert.Nil(t, batches[0].DurationMs)

	end := time.Now().Round(0)
	require.NoError(t, store.EndBatch(batchID, end, 2))

	batches, err = store.GetAllBatches()
	require.NoError(t, err)
	require.Len(t, batches, 1)
	b := batches[0]
	assert.Equal(t, batchID, b.BatchID)
	assert.Len(t, b.BatchUUID, 36)
	assert.Equal(t, schema.RunBatch, b.Kind)
	assert.True(t, b.StartTime.Equal(start))
	require.NotNil(t, b.EndTime)
	assert.True(t, b.EndTime.Equal(end))
	require.NotNil(t, b.DurationMs)
	assert.Equal(t, end.Sub(start).Milliseconds(), *b.DurationMs)
	assert.Equal(t, int32(2), b.TotalItems)
	require.NotNil(t, b.ConfigParams)
	assert.JSONEq(t, `{"workers":2}`, *b.ConfigParams)

	runs, err := store.GetAllRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "patch2-Time-5-Kali", runs[0].PatchName)
	assert.Equal(t, "failed", runs[0].State)
	assert.Equal(t, "not_started,checked_out,failed", runs[0].Trail)
	require.NotNil(t, runs[0].ErrorMessage)
	assert.Equal(t, "checkout failed", *runs[0].ErrorMessage)
	assert.Equal(t, "patch1-Time-5-Arja", runs[1].PatchName)
	assert.Equal(t, "Time", runs[1].Project)
	assert.Equal(t, int32(5), runs[1].BugNumber)
	assert.Equal(t, int32(1), runs[1].Depth)
	assert.Equal(t, "0123456789abcdef", runs[1].ArtifactKey)
	assert.Nil(t, runs[1].ErrorMessage)
	assert.True(t, runs[1].CollectorInvoked)
	assert.True(t, runs[1].AnalyzerInvoked)
	assert.Equal(t, int64(1500), runs[1].DurationMs)

	depthStats, err := store.GetAllDepthStats()
	require.NoError(t, err)
	require.Len(t, depthStats, 1)
	assert.Equal(t, batchID, depthStats[0].BatchID)
	assert.Equal(t, int32(2), depthStats[0].CorpusSize)
	assert.Equal(t, stats, depthStats[0].DepthStatistics)

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", status.Backend)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, status.TotalBatches)
	assert.Equal(t, batchID, status.LastBatchID)
	assert.True(t, status.LastBatchTime.Equal(start))
	assert.Equal(t, map[string]int64{"done": 1, "failed": 1}, status.StateCounts)
	assert.Equal(t, int64(1), status.TableSizes[batchesTable])
	assert.Equal(t, int64(2), status.TableSizes[runsTable])
	assert.Equal(t, int64(1), status.TableSizes[depthStatsTable])
}

func TestLedgerStore_EndBatchUnknown(t *testing.T) {
	store, err := NewLedgerStore(schema.SQLiteBackend, ":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	assert.Error(t, store.EndBatch(42, time.Now(), 0))
}

func TestLedgerStore_UnsupportedBackend(t *testing.T) {
	_, err := NewLedgerStore("oracle", "")
	assert.Error(t, err)
}

func TestLedgerUtils(t *testing.T) {
	assert.NoError(t, validateTableName(runsTable))
	assert.Error(t, validateTableName(""))
	assert.Error(t, validateTableName("runs; DROP TABLE x"))

	assert.Equal(t, "`execdiff_runs`", quoteTableName(runsTable, schema.MySQLBackend))
	assert.Equal(t, `"execdiff_runs"`, quoteTableName(runsTable, schema.PostgreSQLBackend))

	assert.Equal(t, "?, ?, ?", placeholders(schema.SQLiteBackend, 3))
	assert.Equal(t, "$1, $2", placeholders(schema.PostgreSQLBackend, 2))

	at := time.Date(2024, 3, 1, 12, 0, 0, 5, time.FixedZone("X", 3600))
	assert.Equal(t, "2024-03-01T11:00:00.000000005Z", formatTime(at, schema.SQLiteBackend))
	assert.Equal(t, at, formatTime(at, schema.MySQLBackend))
}

func TestClearLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := NewLedgerStore(schema.SQLiteBackend, path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, ClearLedger(schema.SQLiteBackend, path, ""))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Clearing twice is fine.
	assert.NoError(t, ClearLedger(schema.SQLiteBackend, path, ""))
	assert.Error(t, ClearLedger(schema.SQLiteBackend, "", ""))
	assert.NoError(t, ClearLedger(schema.NoneBackend, "", ""))
	assert.Error(t, ClearLedger("oracle", "", ""))
}

func TestMigrateLedger_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	var out bytes.Buffer

	require.NoError(t, MigrateLedger(&out, schema.SQLiteBackend, path, -1))
	assert.Contains(t, out.String(), "Successfully migrated from version 0 to version 3")

	out.Reset()
	require.NoError(t, MigrateLedger(&out, schema.SQLiteBackend, path, -1))
	assert.Contains(t, out.String(), "No migration needed")

	// Tables created by migrations are usable by the store.
	store, err := NewLedgerStore(schema.SQLiteBackend, path)
	require.NoError(t, err)
	_, err = store.BeginBatch(schema.ReportBatch, time.Now(), nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out.Reset()
	require.NoError(t, MigrateLedger(&out, schema.SQLiteBackend, path, 1))
	assert.Contains(t, out.String(), "to version 1")

	out.Reset()
	require.NoError(t, MigrateLedger(&out, schema.SQLiteBackend, path, 0))
	assert.Contains(t, out.String(), "rolled back from version 1 to version 0")

	assert.Error(t, MigrateLedger(&out, schema.NoneBackend, "", -1))
}

func TestExecuteLedgerExport(t *testing.T) {
	store, err := NewLedgerStore(schema.SQLiteBackend, ":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	mgr := &LedgerStoreManager{store: store}

	var out bytes.Buffer
	assert.Error(t, ExecuteLedgerExport(&out, mgr, ""))
	assert.ErrorContains(t, ExecuteLedgerExport(&out, mgr, filepath.Join(t.TempDir(), "x")), "no ledger data")

	batchID, err := store.BeginBatch(schema.ReportBatch, time.Now(), nil)
	require.NoError(t, err)
	require.NoError(t, store.RecordRun(batchID, sampleRun("patch1-Time-5-Arja", 0, schema.Done)))
	require.NoError(t, store.RecordDepthStatistics(batchID, 1, schema.DepthStatistics{Depth: 0, Analyzed: 1}))
	require.NoError(t, store.EndBatch(batchID, time.Now(), 1))

	prefix := filepath.Join(t.TempDir(), "ledger")
	require.NoError(t, ExecuteLedgerExport(&out, mgr, prefix))
	for _, suffix := range []string{".batches.parquet", ".runs.parquet", ".depth_stats.parquet"} {
		info, err := os.Stat(prefix + suffix)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
	assert.Contains(t, out.String(), "Exported 1 runs to:")
}

func TestExecuteLedgerExport_Mocked(t *testing.T) {
	mgr := &MockLedgerManager{}
	mgr.On("GetLedgerStore").Return(nil).Once()
	assert.ErrorContains(t, ExecuteLedgerExport(&bytes.Buffer{}, mgr, "out"), "not initialized")

	store := &MockLedgerStore{}
	store.On("GetStatus").Return(schema.LedgerStatus{}, errors.New("boom"))
	mgr.On("GetLedgerStore").Return(store)
	assert.ErrorContains(t, ExecuteLedgerExport(&bytes.Buffer{}, mgr, "out"), "boom")

	mgr.AssertExpectations(t)
	store.AssertExpectations(t)
}
