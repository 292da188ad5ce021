package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/khaes-kth/drr-execdiff/internal/artifact"
	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testPatch  = "patch1-Time-5-Arja"
	testCommit = "c0ffee"
	testParent = "beef00"
	testFile   = "Time-5/src/main/java/Foo.java"
)

// fakeRunner stands in for the collector and the analyzer. It writes the
// artifacts the real tools would and counts invocations per executable.
type fakeRunner struct {
	mu    sync.Mutex
	calls map[string]int
	invs  []contract.Invocation
	fail  map[string]error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeRunner) Run(_ context.Context, inv contract.Invocation) (contract.InvocationResult, error) {
	f.mu.Lock()
	f.calls[inv.Name]++
	f.invs = append(f.invs, inv)
	err := f.fail[inv.Name]
	f.mu.Unlock()

	if err != nil {
		return contract.InvocationResult{ExitCode: 1, Stdout: []byte("partial\n"), Stderr: []byte("boom\n")}, err
	}
	switch inv.Name {
	case "collector":
		right := inv.Args[slices.Index(inv.Args, "--right")+1]
		dir := filepath.Join(inv.Dir, "sahab-reports", right)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return contract.InvocationResult{}, err
		}
		for _, name := range []string{"left.json", "right.json"} {
			if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
				return contract.InvocationResult{}, err
			}
		}
		return contract.InvocationResult{Stdout: []byte("Sahab spent time 42\n")}, nil
	case "analyzer":
		commit := filepath.Base(filepath.Dir(inv.Args[3]))
		dir := filepath.Join(inv.Dir, "state_diffs")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return contract.InvocationResult{}, err
		}
		if err := os.WriteFile(filepath.Join(dir, "state_diff_"+commit+".html"), []byte("only occurs"), 0o644); err != nil {
			return contract.InvocationResult{}, err
		}
		return contract.InvocationResult{Stderr: []byte("diff computation took 5 ms\n")}, nil
	}
	return contract.InvocationResult{}, nil
}

func (f *fakeRunner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

type env struct {
	root   string
	repo   string
	cfg    *contract.Config
	store  *artifact.Store
	git    *contract.MockGitClient
	runner *fakeRunner
	driver *Driver
}

// writeRepo lays out a patch repository with one bug directory and the
// reference diff of testPatch.
func writeRepo(t *testing.T, repo string) {
	t.Helper()
	write := func(name, content string) {
		path := filepath.Join(repo, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write(testFile, "class Foo {}\n")
	write("Time-5/pom.xml", "<source>1.5</source><target>1.5</target>\n<v>1.5</v>\n")
	write("exec-diff-reports/"+testPatch+"/gh_full.html", "<html>diff</html>")
}

func newEnv(t *testing.T, repoPath string) *env {
	t.Helper()
	root := t.TempDir()
	if repoPath == "" {
		repoPath = filepath.Join(root, "repo")
	}
	cfg := &contract.Config{
		Root:          root,
		Depths:        2,
		DepthDir:      contract.DefaultDepthDir,
		Depth:         -1,
		RepoPath:      repoPath,
		WorkDir:       filepath.Join(root, "work"),
		ReferenceDiff: contract.DefaultReferenceDiff,
		AppliedMarker: contract.DefaultAppliedMarker,
		BaseURL:       contract.DefaultBaseURL,
		Pin:           contract.PinRewrite{File: "pom.xml", From: "1.5", To: "1.6"},
		Collector:     contract.ToolConfig{Command: "collector", Args: contract.DefaultCollectorArgs, Timeout: time.Minute},
		Analyzer:      contract.ToolConfig{Command: "analyzer", Args: contract.DefaultAnalyzerArgs, Timeout: time.Minute},
		Workers:       2,
	}
	for _, d := range cfg.AllDepths() {
		writeRepo(t, cfg.DepthRepoPath(d))
	}
	store := artifact.NewStore(cfg.Root, cfg.DepthDir)
	git := new(contract.MockGitClient)
	runner := newFakeRunner()
	return &env{
		root:   root,
		repo:   cfg.DepthRepoPath(0),
		cfg:    cfg,
		store:  store,
		git:    git,
		runner: runner,
		driver: NewDriver(cfg, git, runner, store),
	}
}

// expectPatch programs the git mock for a well-formed patch branch.
func (e *env) expectPatch(repo, patch, commit string, changed []string, message string) {
	e.git.On("Checkout", mock.Anything, repo, patch).Return(nil)
	e.git.On("GetLastCommitMessage", mock.Anything, repo).Return(message, nil)
	e.git.On("GetRepoHash", mock.Anything, repo).Return(commit, nil)
	e.git.On("GetChangedFiles", mock.Anything, repo, commit).Return(changed, nil)
	e.git.On("Checkout", mock.Anything, repo, commit+"~1").Return(nil)
	e.git.On("Checkout", mock.Anything, repo, commit).Return(nil)
	e.git.On("ResolveRef", mock.Anything, repo, commit+"~1").Return(testParent, nil)
}

func target(t *testing.T, name string) Target {
	t.Helper()
	id, err := schema.ParsePatchID(name)
	require.NoError(t, err)
	return Target{Patch: id, Test: "org.joda.time.TestPeriod"}
}

func TestRun_FullPipeline(t *testing.T) {
	e := newEnv(t, "")
	e.expectPatch(e.repo, testPatch, testCommit, []string{testFile}, "patch applied")

	rec := e.driver.Run(context.Background(), target(t, testPatch), 0)

	assert.Equal(t, schema.Done, rec.State, rec.Err)
	assert.Equal(t, []schema.RunState{
		schema.NotStarted, schema.CheckedOut, schema.PatchApplicationVerified,
		schema.TreesMaterialized, schema.TraceCollected, schema.AnalysisInvoked, schema.Done,
	}, rec.Trail)
	assert.Equal(t, schema.ArtifactKey(testCommit), rec.Key)
	assert.Equal(t, testFile, rec.ChangedFile)
	assert.True(t, rec.CollectorInvoked)
	assert.True(t, rec.AnalyzerInvoked)

	for _, kind := range []schema.ArtifactKind{schema.TraceLog, schema.DiffComputerErrorLog, schema.SahabReportRight, schema.StateDiffReport} {
		ok, err := e.store.Exists(0, kind, testCommit)
		require.NoError(t, err)
		assert.True(t, ok, kind)
	}

	work := e.cfg.DepthWorkDir(0)
	pom, err := os.ReadFile(filepath.Join(work, "patched", "pom.xml"))
	require.NoError(t, err)
	assert.Equal(t, "<source>1.6</source><target>1.5</target>\n<v>1.6</v>\n", string(pom))
	assert.FileExists(t, filepath.Join(work, "original", "src", "main", "java", "Foo.java"))
	assert.FileExists(t, filepath.Join(work, "old-src", "Foo.java"))
	assert.FileExists(t, filepath.Join(work, "new-src", "Foo.java"))

	require.Len(t, e.runner.invs, 2)
	collector := e.runner.invs[0]
	assert.Equal(t, e.store.DepthDir(0), collector.Dir)
	assert.Equal(t, time.Minute, collector.Timeout)
	assert.Contains(t, collector.Args, testParent)
	assert.Contains(t, collector.Args, "Foo.java")
	assert.Contains(t, collector.Args, filepath.Join(e.repo, "Time-5"))
	analyzer := e.runner.invs[1]
	assert.Equal(t, e.store.Path(0, schema.SahabReportLeft, testCommit), analyzer.Args[2])
	assert.Equal(t, filepath.Join(work, "reference", "gh_full_"+testPatch+".html"), analyzer.Args[6])
	assert.Equal(t, contract.DefaultBaseURL, analyzer.Args[8])
}

func TestRun_Idempotent(t *testing.T) {
	e := newEnv(t, "")
	e.expectPatch(e.repo, testPatch, testCommit, []string{testFile}, "patch applied")
	ctx := context.Background()

	first := e.driver.Run(ctx, target(t, testPatch), 0)
	second := e.driver.Run(ctx, target(t, testPatch), 0)

	assert.Equal(t, schema.Done, first.State)
	assert.Equal(t, schema.Done, second.State)
	assert.Equal(t, 1, e.runner.count("collector"), "collector must not run twice")
	assert.Equal(t, 1, e.runner.count("analyzer"))
	assert.False(t, second.CollectorInvoked)
	assert.NotContains(t, second.Trail, schema.TreesMaterialized)
}

func TestRun_ResumesAtAnalysis(t *testing.T) {
	e := newEnv(t, "")
	e.expectPatch(e.repo, testPatch, testCommit, []string{testFile}, "patch applied")
	f, err := e.store.Create(0, schema.SahabReportRight, testCommit)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rec := e.driver.Run(context.Background(), target(t, testPatch), 0)

	assert.Equal(t, schema.Done, rec.State, rec.Err)
	assert.Zero(t, e.runner.count("collector"))
	assert.Equal(t, 1, e.runner.count("analyzer"))
	assert.NotContains(t, rec.Trail, schema.TreesMaterialized)
	assert.NoDirExists(t, filepath.Join(e.cfg.DepthWorkDir(0), "patched"))
	assert.FileExists(t, filepath.Join(e.cfg.DepthWorkDir(0), "new-src", "Foo.java"))
}

func TestRun_Skipped(t *testing.T) {
	tests := []struct {
		name    string
		message string
		changed []string
		wantErr error
	}{
		{"no applied marker", "bugs added", []string{testFile}, ErrNotApplied},
		{"two changed files", "patch applied", []string{testFile, "Time-5/pom.xml"}, ErrAmbiguousPatch},
		{"no changed file", "patch applied", []string{}, ErrAmbiguousPatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, "")
			e.expectPatch(e.repo, testPatch, testCommit, tt.changed, tt.message)

			rec := e.driver.Run(context.Background(), target(t, testPatch), 0)

			assert.Equal(t, schema.Skipped, rec.State)
			assert.Contains(t, rec.Err, tt.wantErr.Error())
			assert.Zero(t, e.runner.count("collector"))
			assert.Zero(t, e.runner.count("analyzer"))
			n, err := e.store.Count(0, schema.TraceLog)
			require.NoError(t, err)
			assert.Zero(t, n, "a skipped run leaves no artifacts")
		})
	}
}

func TestRun_Failures(t *testing.T) {
	t.Run("collector exits non zero", func(t *testing.T) {
		e := newEnv(t, "")
		e.expectPatch(e.repo, testPatch, testCommit, []string{testFile}, "patch applied")
		e.runner.fail["collector"] = &contract.ExitError{Name: "collector", ExitCode: 1}

		rec := e.driver.Run(context.Background(), target(t, testPatch), 0)

		assert.Equal(t, schema.Failed, rec.State)
		assert.Contains(t, rec.Err, "trace collector")
		assert.Zero(t, e.runner.count("analyzer"))
		ok, err := e.store.Exists(0, schema.TraceLog, testCommit)
		require.NoError(t, err)
		assert.True(t, ok, "the attempt is still logged")
	})

	t.Run("analyzer times out", func(t *testing.T) {
		e := newEnv(t, "")
		e.expectPatch(e.repo, testPatch, testCommit, []string{testFile}, "patch applied")
		e.runner.fail["analyzer"] = contract.ErrTimeout

		rec := e.driver.Run(context.Background(), target(t, testPatch), 0)

		assert.Equal(t, schema.Failed, rec.State)
		assert.Contains(t, rec.Trail, schema.TraceCollected)
		assert.NotContains(t, rec.Trail, schema.AnalysisInvoked)
	})

	t.Run("missing reference diff", func(t *testing.T) {
		e := newEnv(t, "")
		e.expectPatch(e.repo, testPatch, testCommit, []string{testFile}, "patch applied")
		require.NoError(t, os.RemoveAll(filepath.Join(e.repo, "exec-diff-reports")))

		rec := e.driver.Run(context.Background(), target(t, testPatch), 0)

		assert.Equal(t, schema.Failed, rec.State)
		assert.Contains(t, rec.Err, ErrNoReferenceDiff.Error())
		assert.Equal(t, 1, e.runner.count("collector"))
		assert.Zero(t, e.runner.count("analyzer"))
	})

	t.Run("no test identifier", func(t *testing.T) {
		e := newEnv(t, "")
		e.expectPatch(e.repo, testPatch, testCommit, []string{testFile}, "patch applied")
		tgt := target(t, testPatch)
		tgt.Test = ""

		rec := e.driver.Run(context.Background(), tgt, 0)

		assert.Equal(t, schema.Failed, rec.State)
		assert.Contains(t, rec.Err, ErrNoTest.Error())
	})
}

func TestRun_LeftRefOverride(t *testing.T) {
	e := newEnv(t, "")
	e.cfg.LeftRef = "e5d67a8"
	e.expectPatch(e.repo, testPatch, testCommit, []string{testFile}, "patch applied")

	rec := e.driver.Run(context.Background(), target(t, testPatch), 0)

	require.Equal(t, schema.Done, rec.State, rec.Err)
	assert.Contains(t, e.runner.invs[0].Args, "e5d67a8")
	e.git.AssertNotCalled(t, "ResolveRef", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCorpus_BestEffort(t *testing.T) {
	e := newEnv(t, "")
	const broken = "patch2-Time-5-Kali"
	e.git.On("Checkout", mock.Anything, e.repo, broken).Return(errors.New("pathspec did not match"))
	e.expectPatch(e.repo, testPatch, testCommit, []string{testFile}, "patch applied")

	var seen []schema.RunState
	e.driver.OnRecord(func(rec schema.RunRecord) { seen = append(seen, rec.State) })

	records, err := e.driver.RunCorpus(context.Background(), []Target{target(t, broken), target(t, testPatch)}, []schema.Depth{0})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, schema.Failed, records[0].State)
	assert.Equal(t, schema.Done, records[1].State)
	assert.Equal(t, []schema.RunState{schema.Failed, schema.Done}, seen)
}

func TestRunCorpus_ParallelDepths(t *testing.T) {
	root := t.TempDir()
	e := newEnv(t, filepath.Join(root, "repo-{depth}"))
	require.True(t, e.cfg.IsolatedCheckouts())
	for _, d := range e.cfg.AllDepths() {
		e.expectPatch(e.cfg.DepthRepoPath(d), testPatch, testCommit, []string{testFile}, "patch applied")
	}

	records, err := e.driver.RunCorpus(context.Background(), []Target{target(t, testPatch)}, e.cfg.AllDepths())
	require.NoError(t, err)
	require.Len(t, records, 2)
	for i, rec := range records {
		assert.Equal(t, schema.Depth(i), rec.Depth)
		assert.Equal(t, schema.Done, rec.State, rec.Err)
	}
	assert.Equal(t, 2, e.runner.count("collector"))
	assert.FileExists(t, filepath.Join(e.cfg.DepthWorkDir(1), "patched", "pom.xml"))
}

func TestRunCorpus_Cancelled(t *testing.T) {
	e := newEnv(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records, err := e.driver.RunCorpus(ctx, []Target{target(t, testPatch)}, []schema.Depth{0, 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, records)
}

func TestNewStaging(t *testing.T) {
	st := newStaging("/w", schema.BugID{Project: "Time", Number: 5}, testFile)
	assert.Equal(t, "src/main/java/Foo.java", st.changedInTree)
	assert.Equal(t, filepath.Join("/w", "old-src", "Foo.java"), st.oldSrcFile())
	assert.Equal(t, filepath.Join("/w", "new-src", "Foo.java"), st.newSrcFile())

	st = newStaging("/w", schema.BugID{Project: "Time", Number: 5}, "README.md")
	assert.Equal(t, "README.md", st.changedInTree)
}
