// Package core glues configuration, the ledger and the output writers to the
// pipeline driver and the metrics aggregator.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/khaes-kth/drr-execdiff/core/agg"
	"github.com/khaes-kth/drr-execdiff/core/pipeline"
	"github.com/khaes-kth/drr-execdiff/internal/artifact"
	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/internal/manifest"
	"github.com/khaes-kth/drr-execdiff/internal/outwriter"
	"github.com/khaes-kth/drr-execdiff/schema"
)

// ExecutorFunc defines the signature shared by the command entry points.
type ExecutorFunc func(ctx context.Context, cfg *contract.Config, mgr contract.LedgerManager) error

// writer renders every result the entry points produce.
var writer = outwriter.NewOutWriter()

// ExecuteRun drives every patch of the patch list through the pipeline and
// prints one row per ExecutionRun.
func ExecuteRun(ctx context.Context, cfg *contract.Config, mgr contract.LedgerManager) error {
	start := time.Now()
	records, err := GetRunResults(ctx, cfg, mgr, contract.NewLocalGitClient(), contract.NewExecRunner())
	if err != nil && len(records) == 0 {
		return err
	}
	if werr := writer.WriteRuns(records, cfg, time.Since(start)); werr != nil {
		return werr
	}
	return err
}

// ExecuteReport aggregates the artifacts of every depth and prints the report.
func ExecuteReport(ctx context.Context, cfg *contract.Config, mgr contract.LedgerManager) error {
	report, err := GetReportResults(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	return writer.WriteReport(report, cfg)
}

// ExecuteCorpus prints the comparable corpus.
func ExecuteCorpus(ctx context.Context, cfg *contract.Config, _ contract.LedgerManager) error {
	listing, err := GetCorpusResults(ctx, cfg)
	if err != nil {
		return err
	}
	return writer.WriteCorpus(listing, cfg)
}

// ExecutePatches lists the patch files under dir grouped by bug.
func ExecutePatches(_ context.Context, cfg *contract.Config, dir string) error {
	patches, skipped, err := manifest.ScanDir(dir)
	if err != nil {
		return err
	}
	for _, path := range skipped {
		slog.Debug("Ignoring file without a patch name", "path", path)
	}
	bugs, groups := manifest.GroupByBug(patches)
	return writer.WritePatches(outwriter.GroupPatches(bugs, groups), cfg)
}

// ExecuteLedgerStatus prints the ledger status.
func ExecuteLedgerStatus(_ context.Context, cfg *contract.Config, mgr contract.LedgerManager) error {
	status, err := GetLedgerStatus(mgr)
	if err != nil {
		return err
	}
	return writer.WriteLedgerStatus(status, cfg)
}

// GetRunResults loads the patch list and runs the pipeline over the selected
// depths. Per-run failures are part of the records; the returned error is only
// set when the loop itself could not run or was cancelled.
func GetRunResults(ctx context.Context, cfg *contract.Config, mgr contract.LedgerManager, git contract.GitClient, runner contract.ProcessRunner) ([]schema.RunRecord, error) {
	if err := contract.ValidateRunInputs(cfg); err != nil {
		return nil, err
	}
	targets, err := LoadTargets(cfg)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, errors.New("no patches to run")
	}
	if !shouldSuppressHeader(ctx) {
		logRunHeader(cfg, len(targets))
	}

	driver := pipeline.NewDriver(cfg, git, runner, artifact.NewStore(cfg.Root, cfg.DepthDir))

	ledgerStore := storeOf(mgr)
	batchID := beginBatch(ledgerStore, schema.RunBatch, map[string]any{
		"repo_path":  cfg.RepoPath,
		"patch_list": cfg.PatchList,
		"project":    cfg.Project,
		"depths":     cfg.SelectedDepths(),
		"workers":    cfg.Workers,
	})
	if batchID > 0 {
		driver.OnRecord(func(rec schema.RunRecord) {
			if err := ledgerStore.RecordRun(batchID, rec); err != nil {
				logTrackingError("RecordRun", rec.Patch.Name, err)
			}
		})
	}

	records, err := driver.RunCorpus(ctx, targets, cfg.SelectedDepths())
	endBatch(ledgerStore, batchID, len(records))
	return records, err
}

// LoadTargets reads the patch list, applies the project filter and resolves
// the test of every patch. Patches without a resolvable test are kept so the
// driver records them as failed runs.
func LoadTargets(cfg *contract.Config) ([]pipeline.Target, error) {
	entries, err := manifest.Load(cfg.PatchList)
	if err != nil {
		return nil, err
	}
	entries = manifest.FilterProject(entries, cfg.Project)

	catalog := manifest.NewTestCatalog(metadataDir(cfg))
	targets := make([]pipeline.Target, 0, len(entries))
	for _, e := range entries {
		id, err := schema.ParsePatchID(e.Patch)
		if err != nil {
			slog.Warn("Skipping patch with unparsable name", "patch", e.Patch, "err", err)
			continue
		}
		test, err := catalog.Resolve(e, id.Bug)
		if err != nil {
			slog.Warn("No test found for patch", "patch", id.Name, "bug", id.Bug.String(), "err", err)
		}
		targets = append(targets, pipeline.Target{Patch: id, Test: test})
	}
	return targets, nil
}

// metadataDir expands {repo} against the checkout of the first selected depth.
func metadataDir(cfg *contract.Config) string {
	depths := cfg.SelectedDepths()
	repo := cfg.RepoPath
	if len(depths) > 0 {
		repo = cfg.DepthRepoPath(depths[0])
	}
	return strings.ReplaceAll(cfg.MetadataDir, "{repo}", repo)
}

// GetReportResults resolves the comparable corpus and computes one
// DepthStatistics per depth. ErrEmptyCorpus aborts the report.
func GetReportResults(ctx context.Context, cfg *contract.Config, mgr contract.LedgerManager) (*schema.CorpusReport, error) {
	if !shouldSuppressHeader(ctx) {
		logReportHeader(cfg)
	}

	start := time.Now()
	ledgerStore := storeOf(mgr)
	batchID := beginBatch(ledgerStore, schema.ReportBatch, map[string]any{
		"root":            cfg.Root,
		"depths":          cfg.Depths,
		"reference_depth": int(cfg.ReferenceDepth),
		"depth_dir":       cfg.DepthDir,
	})

	aggregator := agg.NewAggregator(artifact.NewStore(cfg.Root, cfg.DepthDir), cfg.Workers)
	report, err := aggregator.Report(ctx, cfg.ReferenceDepth, cfg.AllDepths())
	report.GeneratedAt = start
	if err != nil {
		endBatch(ledgerStore, batchID, 0)
		if errors.Is(err, agg.ErrEmptyCorpus) {
			return nil, fmt.Errorf("%w: no commit has a state diff at every one of the %d depths", err, cfg.Depths)
		}
		return nil, err
	}

	if batchID > 0 {
		for _, s := range report.Depths {
			if err := ledgerStore.RecordDepthStatistics(batchID, report.CorpusSize, s); err != nil {
				logTrackingError("RecordDepthStatistics", fmt.Sprintf("depth %d", s.Depth), err)
			}
		}
	}
	endBatch(ledgerStore, batchID, len(report.Depths))
	return &report, nil
}

// GetCorpusResults resolves the comparable corpus only.
func GetCorpusResults(_ context.Context, cfg *contract.Config) (outwriter.CorpusListing, error) {
	depths := cfg.AllDepths()
	aggregator := agg.NewAggregator(artifact.NewStore(cfg.Root, cfg.DepthDir), cfg.Workers)
	corpus, err := aggregator.ComparableCorpus(cfg.ReferenceDepth, depths)
	if err != nil {
		return outwriter.CorpusListing{}, err
	}
	return outwriter.CorpusListing{
		ReferenceDepth: cfg.ReferenceDepth,
		Depths:         depths,
		Size:           len(corpus),
		Keys:           corpus.Sorted(),
	}, nil
}

// GetLedgerStatus returns the status of the configured ledger.
func GetLedgerStatus(mgr contract.LedgerManager) (schema.LedgerStatus, error) {
	store := storeOf(mgr)
	if store == nil {
		return schema.LedgerStatus{Backend: string(schema.NoneBackend)}, nil
	}
	status, err := store.GetStatus()
	if err != nil {
		return status, fmt.Errorf("failed to get ledger status: %w", err)
	}
	return status, nil
}

// storeOf returns the ledger store of mgr, or nil when there is none.
func storeOf(mgr contract.LedgerManager) contract.LedgerStore {
	if mgr == nil {
		return nil
	}
	return mgr.GetLedgerStore()
}

// beginBatch opens a ledger batch. Zero means tracking is off or failed.
func beginBatch(store contract.LedgerStore, kind schema.BatchKind, params map[string]any) int64 {
	if store == nil {
		return 0
	}
	batchID, err := store.BeginBatch(kind, time.Now(), params)
	if err != nil {
		contract.LogWarn("Ledger tracking initialization failed", err)
		return 0
	}
	return batchID
}

func endBatch(store contract.LedgerStore, batchID int64, items int) {
	if store == nil || batchID <= 0 {
		return
	}
	if err := store.EndBatch(batchID, time.Now(), items); err != nil {
		contract.LogWarn("Failed to finalize ledger batch", err)
	}
}

// logTrackingError logs ledger failures without disrupting the pipeline.
func logTrackingError(operation, subject string, err error) {
	contract.LogWarn(fmt.Sprintf("Ledger tracking failed for %s on %s", operation, subject), err)
}
