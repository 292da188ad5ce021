// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"time"

	"github.com/khaes-kth/drr-execdiff/schema"
)

// GitClient defines the version-control operations the pipeline driver needs.
// This allows the driver to be tested without needing a real git executable.
type GitClient interface {
	// --- Generic / Low-Level ---

	// Run executes a git command against repoPath and returns its stdout.
	Run(ctx context.Context, repoPath string, args ...string) ([]byte, error)

	// --- Branch / Reference ---

	// Checkout switches the working tree at repoPath to ref.
	Checkout(ctx context.Context, repoPath string, ref string) error

	// GetRepoHash returns the current HEAD commit hash of the repository.
	GetRepoHash(ctx context.Context, repoPath string) (string, error)

	// ResolveRef returns the full commit hash ref points to.
	ResolveRef(ctx context.Context, repoPath string, ref string) (string, error)

	// --- Commit Inspection ---

	// GetLastCommitMessage returns the full message of the HEAD commit.
	GetLastCommitMessage(ctx context.Context, repoPath string) (string, error)

	// GetChangedFiles lists the paths touched by a single commit.
	GetChangedFiles(ctx context.Context, repoPath string, commit string) ([]string, error)
}

// Invocation describes one external process call. Name is the executable,
// Args are passed verbatim without a shell.
type Invocation struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

// InvocationResult carries the captured output of a finished process.
type InvocationResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	TimedOut bool
}

// ProcessRunner runs external tools such as the trace collector and analyzer.
type ProcessRunner interface {
	Run(ctx context.Context, inv Invocation) (InvocationResult, error)
}

// LedgerManager defines the interface for reaching the ledger store.
// This allows the persistence layer to be mocked for testing.
type LedgerManager interface {
	GetLedgerStore() LedgerStore
}

// LedgerStore records pipeline runs and report aggregates grouped in batches.
type LedgerStore interface {
	// BeginBatch creates a new batch and returns its unique ID.
	BeginBatch(kind schema.BatchKind, startTime time.Time, configParams map[string]any) (int64, error)

	// EndBatch updates the batch with completion data.
	EndBatch(batchID int64, endTime time.Time, totalItems int) error

	// RecordRun stores the outcome of one execution run.
	RecordRun(batchID int64, rec schema.RunRecord) error

	// RecordDepthStatistics stores one aggregated depth row.
	RecordDepthStatistics(batchID int64, corpusSize int, stats schema.DepthStatistics) error

	// GetStatus returns status information about the ledger.
	GetStatus() (schema.LedgerStatus, error)

	// GetAllBatches, GetAllRuns and GetAllDepthStats feed exports.
	GetAllBatches() ([]schema.BatchRecord, error)
	GetAllRuns() ([]schema.RunRow, error)
	GetAllDepthStats() ([]schema.DepthStatsRow, error)

	// Close closes the underlying connection.
	Close() error
}
