//go:build database

package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/khaes-kth/drr-execdiff/internal/ledger"
	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startMySQL starts a MySQL container and returns its connection string.
func startMySQL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mysql:8",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "secret123",
			"MYSQL_DATABASE":      "execdiff",
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(60 * time.Second),
	}
	mysqlC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mysqlC.Terminate(ctx) })

	host, err := mysqlC.Host(ctx)
	require.NoError(t, err)
	port, err := mysqlC.MappedPort(ctx, "3306")
	require.NoError(t, err)

	return fmt.Sprintf("root:secret123@tcp(%s:%s)/execdiff?parseTime=true", host, port.Port())
}

// startPostgres starts a PostgreSQL container and returns its connection string.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_HOST_AUTH_METHOD": "trust",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("host=%s port=%s user=postgres dbname=postgres sslmode=disable", host, port.Port())
}

// TestLedgerWithMySQL drives the ledger commands against a MySQL backend.
func TestLedgerWithMySQL(t *testing.T) {
	connStr := startMySQL(t)
	exerciseLedgerStore(t, schema.MySQLBackend, connStr)
	exerciseLedgerCLI(t, "mysql", connStr)
}

// TestLedgerWithPostgres drives the ledger commands against a PostgreSQL backend.
func TestLedgerWithPostgres(t *testing.T) {
	connStr := startPostgres(t)
	exerciseLedgerStore(t, schema.PostgreSQLBackend, connStr)
	exerciseLedgerCLI(t, "postgresql", connStr)
}

// exerciseLedgerStore records a batch through the library and reads it back.
func exerciseLedgerStore(t *testing.T, backend schema.DatabaseBackend, connStr string) {
	t.Helper()
	store, err := ledger.NewLedgerStore(backend, connStr)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	start := time.Now().UTC().Truncate(time.Second)
	batchID, err := store.BeginBatch(schema.RunBatch, start, map[string]any{"depths": 2})
	require.NoError(t, err)
	require.Positive(t, batchID)

	rec := schema.RunRecord{
		Patch:    schema.PatchID{Name: "patch1-Time-5-Arja", Bug: schema.BugID{Project: "Time", Number: 5}},
		Depth:    1,
		State:    schema.Done,
		Trail:    []schema.RunState{schema.NotStarted, schema.Done},
		Duration: 3 * time.Second,
	}
	require.NoError(t, store.RecordRun(batchID, rec))
	require.NoError(t, store.EndBatch(batchID, start.Add(5*time.Second), 1))

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, status.TotalBatches)
	assert.Equal(t, int64(1), status.StateCounts[string(schema.Done)])

	runs, err := store.GetAllRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "patch1-Time-5-Arja", runs[0].PatchName)

	require.NoError(t, ledger.ClearLedger(backend, "", connStr))
}

// exerciseLedgerCLI runs migrate, report, status, export and clear through the binary.
func exerciseLedgerCLI(t *testing.T, backend, connStr string) {
	t.Helper()
	env := []string{"EXECDIFF_LEDGER_BACKEND=" + backend, "EXECDIFF_LEDGER_DB_CONNECT=" + connStr}

	stdout, err := runCommand(t, env, "ledger", "migrate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "to version 3")

	root := writeFixture(t)
	_, err = runCommand(t, env, "report", "--root", root, "--depths", "2", "--output", "csv")
	require.NoError(t, err)

	stdout, err = runCommand(t, env, "ledger", "status", "--output", "json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"total_batches": 1`)

	exportBase := filepath.Join(t.TempDir(), "ledger")
	_, err = runCommand(t, env, "ledger", "export", "--output-file", exportBase)
	require.NoError(t, err)
	assert.FileExists(t, exportBase+".batches.parquet")

	_, err = runCommand(t, env, "ledger", "clear")
	require.NoError(t, err)

	stdout, err = runCommand(t, env, "ledger", "migrate", "--target-version", "0")
	require.NoError(t, err)
	assert.Contains(t, stdout, "version 0")
}
