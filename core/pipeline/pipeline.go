// Package pipeline drives one patch at a time through checkout, tree
// materialization, trace collection and analysis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/khaes-kth/drr-execdiff/internal/artifact"
	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/schema"
	"golang.org/x/sync/errgroup"
)

// Run outcome causes. They end up in RunRecord.Err and are never fatal to a
// corpus loop.
var (
	ErrNotApplied      = errors.New("last commit does not carry the applied marker")
	ErrAmbiguousPatch  = errors.New("patch commit must change exactly one file")
	ErrNoTest          = errors.New("no test identifier for bug")
	ErrNoReferenceDiff = errors.New("reference diff not found")
)

// Target is one patch to drive and the test exercising it.
type Target struct {
	Patch schema.PatchID
	Test  string
}

// Driver executes ExecutionRuns. Runs at the same depth share one repository
// checkout and must be sequential; distinct depths may run in parallel only
// when each depth has its own checkout.
type Driver struct {
	cfg    *contract.Config
	git    contract.GitClient
	runner contract.ProcessRunner
	store  *artifact.Store

	mu       sync.Mutex
	onRecord func(schema.RunRecord)
}

// NewDriver creates a pipeline driver.
func NewDriver(cfg *contract.Config, git contract.GitClient, runner contract.ProcessRunner, store *artifact.Store) *Driver {
	return &Driver{cfg: cfg, git: git, runner: runner, store: store}
}

// OnRecord registers a callback invoked once per finished run. Calls are
// serialized even when depths run in parallel.
func (d *Driver) OnRecord(fn func(schema.RunRecord)) {
	d.onRecord = fn
}

// RunCorpus drives every target at every depth, best-effort. Per-run failures
// are recorded and never stop the loop; only context cancellation does.
// Records are returned grouped by depth in the order given.
func (d *Driver) RunCorpus(ctx context.Context, targets []Target, depths []schema.Depth) ([]schema.RunRecord, error) {
	perDepth := make([][]schema.RunRecord, len(depths))

	runDepth := func(ctx context.Context, i int, depth schema.Depth) error {
		for _, t := range targets {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := d.Run(ctx, t, depth)
			perDepth[i] = append(perDepth[i], rec)
			d.emit(rec)
		}
		return nil
	}

	var err error
	if len(depths) > 1 && d.cfg.IsolatedCheckouts() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(d.cfg.Workers, 1))
		for i, depth := range depths {
			g.Go(func() error { return runDepth(gctx, i, depth) })
		}
		err = g.Wait()
	} else {
		for i, depth := range depths {
			if err = runDepth(ctx, i, depth); err != nil {
				break
			}
		}
	}

	var records []schema.RunRecord
	for _, recs := range perDepth {
		records = append(records, recs...)
	}
	return records, err
}

func (d *Driver) emit(rec schema.RunRecord) {
	if d.onRecord == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onRecord(rec)
}

// Run drives one ExecutionRun to a terminal state. Steps whose output
// artifacts already exist are not repeated.
func (d *Driver) Run(ctx context.Context, t Target, depth schema.Depth) schema.RunRecord {
	rec := schema.RunRecord{
		Patch:   t.Patch,
		Depth:   depth,
		Test:    t.Test,
		Started: time.Now(),
	}
	rec.Advance(schema.NotStarted)
	logger := slog.With("patch", t.Patch.Name, "depth", depth)

	err := d.run(ctx, t, depth, &rec, logger)
	switch {
	case errors.Is(err, ErrNotApplied), errors.Is(err, ErrAmbiguousPatch):
		rec.Advance(schema.Skipped)
		rec.Err = err.Error()
		logger.Info("Skipped patch", "reason", err)
	case err != nil:
		rec.Advance(schema.Failed)
		rec.Err = err.Error()
		logger.Warn("Run failed", "commit", rec.Key, "err", err)
	default:
		rec.Advance(schema.Done)
		logger.Info("Run done", "commit", rec.Key, "collector", rec.CollectorInvoked, "analyzer", rec.AnalyzerInvoked)
	}
	rec.Duration = time.Since(rec.Started)
	return rec
}

func (d *Driver) run(ctx context.Context, t Target, depth schema.Depth, rec *schema.RunRecord, logger *slog.Logger) error {
	repo := d.cfg.DepthRepoPath(depth)
	work := d.cfg.DepthWorkDir(depth)

	// The reference diff is read from the checkout before it switches branches.
	refDiff, refErr := d.stageReferenceDiff(repo, work, t.Patch, depth)

	if err := d.git.Checkout(ctx, repo, t.Patch.Name); err != nil {
		return fmt.Errorf("checkout %s: %w", t.Patch.Name, err)
	}
	rec.Advance(schema.CheckedOut)

	msg, err := d.git.GetLastCommitMessage(ctx, repo)
	if err != nil {
		return err
	}
	if !strings.Contains(msg, d.cfg.AppliedMarker) {
		return fmt.Errorf("%w %q", ErrNotApplied, d.cfg.AppliedMarker)
	}
	commit, err := d.git.GetRepoHash(ctx, repo)
	if err != nil {
		return err
	}
	rec.Key = schema.ArtifactKey(commit)

	files, err := d.git.GetChangedFiles(ctx, repo, commit)
	if err != nil {
		return err
	}
	if len(files) != 1 {
		return fmt.Errorf("%w (got %d)", ErrAmbiguousPatch, len(files))
	}
	rec.ChangedFile = files[0]
	rec.Advance(schema.PatchApplicationVerified)

	if t.Test == "" {
		return fmt.Errorf("%w %s", ErrNoTest, t.Patch.Bug)
	}

	collected, err := d.store.Exists(depth, schema.SahabReportRight, rec.Key)
	if err != nil {
		return err
	}
	analyzed, err := d.store.Exists(depth, schema.StateDiffReport, rec.Key)
	if err != nil {
		return err
	}
	if collected && analyzed {
		logger.Debug("Artifacts present, nothing to do", "commit", commit)
		rec.Advance(schema.TraceCollected)
		return nil
	}

	st := newStaging(work, t.Patch.Bug, rec.ChangedFile)
	if err := d.materialize(ctx, repo, commit, st, !collected); err != nil {
		return err
	}
	if !collected {
		rec.Advance(schema.TreesMaterialized)
	}

	left := d.cfg.LeftRef
	if left == "" {
		if left, err = d.git.ResolveRef(ctx, repo, commit+"~1"); err != nil {
			return err
		}
	}

	values := map[string]string{
		"repo":           repo,
		"project_dir":    filepath.Join(repo, t.Patch.Bug.String()),
		"original":       st.original,
		"patched":        st.patched,
		"left":           left,
		"right":          commit,
		"test":           t.Test,
		"changed":        filepath.Base(rec.ChangedFile),
		"changed_path":   st.changedInTree,
		"output":         d.store.DepthDir(depth),
		"depth":          strconv.Itoa(int(depth)),
		"patch":          t.Patch.Name,
		"left_report":    d.store.Path(depth, schema.SahabReportLeft, rec.Key),
		"right_report":   d.store.Path(depth, schema.SahabReportRight, rec.Key),
		"old_src":        st.oldSrcFile(),
		"new_src":        st.newSrcFile(),
		"reference_diff": refDiff,
		"base_url":       d.cfg.BaseURL,
	}

	if !collected {
		rec.CollectorInvoked = true
		res, err := d.invoke(ctx, d.cfg.Collector, depth, values)
		if werr := d.writeLog(depth, schema.TraceLog, rec.Key, res.Stdout); werr != nil {
			return werr
		}
		if err != nil {
			return fmt.Errorf("trace collector: %w", err)
		}
	}
	rec.Advance(schema.TraceCollected)

	if analyzed {
		return nil
	}
	if refErr != nil {
		return refErr
	}
	rec.AnalyzerInvoked = true
	res, err := d.invoke(ctx, d.cfg.Analyzer, depth, values)
	if werr := d.writeLog(depth, schema.DiffComputerErrorLog, rec.Key, res.Stderr); werr != nil {
		return werr
	}
	if err != nil {
		return fmt.Errorf("analyzer: %w", err)
	}
	rec.Advance(schema.AnalysisInvoked)
	return nil
}

func (d *Driver) invoke(ctx context.Context, tool contract.ToolConfig, depth schema.Depth, values map[string]string) (contract.InvocationResult, error) {
	dir := tool.Dir
	if dir == "" {
		dir = d.store.DepthDir(depth)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return contract.InvocationResult{}, err
		}
	}
	inv := contract.Invocation{
		Name:    tool.Command,
		Args:    contract.ExpandArgs(tool.Args, values),
		Dir:     dir,
		Timeout: tool.Timeout,
	}
	slog.Debug("Invoking external tool", "cmd", inv.Name, "args", inv.Args, "dir", inv.Dir)
	return d.runner.Run(ctx, inv)
}

// writeLog stores captured tool output, even when the tool failed, so every
// attempt is visible in the per-depth counts.
func (d *Driver) writeLog(depth schema.Depth, kind schema.ArtifactKind, key schema.ArtifactKey, data []byte) error {
	f, err := d.store.Create(depth, kind, key)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return f.Close()
}
