package artifact

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, s *Store, d schema.Depth, kind schema.ArtifactKind, key schema.ArtifactKey, content string) {
	t.Helper()
	f, err := s.Create(d, kind, key)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestStorePath(t *testing.T) {
	s := NewStore("/data", "exec-diff%d/output")
	tests := []struct {
		kind schema.ArtifactKind
		want string
	}{
		{schema.TraceLog, "/data/exec-diff1/output/logs/sahab_abc.log"},
		{schema.DiffComputerErrorLog, "/data/exec-diff1/output/logs/diff_computer_abc.err"},
		{schema.SahabReportLeft, "/data/exec-diff1/output/sahab-reports/abc/left.json"},
		{schema.SahabReportRight, "/data/exec-diff1/output/sahab-reports/abc/right.json"},
		{schema.StateDiffReport, "/data/exec-diff1/output/state_diffs/state_diff_abc.html"},
		{schema.ManipulationFlag, "/data/exec-diff1/output/logs/diff_computer_abc.err"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), s.Path(1, tt.kind, "abc"))
		})
	}
	assert.Panics(t, func() { s.Path(0, "bogus", "abc") })
}

func TestStoreStat(t *testing.T) {
	s := NewStore(t.TempDir(), "exec-diff%d/output")
	writeArtifact(t, s, 0, schema.SahabReportRight, "empty", "")
	writeArtifact(t, s, 0, schema.SahabReportRight, "full", `{"a":1}`)
	writeArtifact(t, s, 0, schema.DiffComputerErrorLog, "manip", "x\nUI manipulation took 5 ms\n")
	writeArtifact(t, s, 0, schema.DiffComputerErrorLog, "plain", "nothing here\n")

	tests := []struct {
		name string
		kind schema.ArtifactKind
		key  schema.ArtifactKey
		want Presence
	}{
		{"missing", schema.SahabReportRight, "nope", Absent},
		{"zero byte is empty", schema.SahabReportRight, "empty", Empty},
		{"non empty", schema.SahabReportRight, "full", Populated},
		{"marker present", schema.ManipulationFlag, "manip", Populated},
		{"marker absent", schema.ManipulationFlag, "plain", Absent},
		{"marker file missing", schema.ManipulationFlag, "nope", Absent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Stat(0, tt.kind, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	ok, err := s.Exists(0, schema.SahabReportRight, "empty")
	require.NoError(t, err)
	assert.True(t, ok, "an empty report still exists")

	ok, err = s.Exists(3, schema.TraceLog, "never")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreOpen(t *testing.T) {
	s := NewStore(t.TempDir(), "exec-diff%d/output")
	writeArtifact(t, s, 2, schema.TraceLog, "abc", "Sahab spent time 12\n")

	rc, err := s.Open(2, schema.TraceLog, "abc")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "Sahab spent time 12\n", string(data))

	_, err = s.Open(1, schema.TraceLog, "abc")
	assert.ErrorIs(t, err, ErrMissing)
}

func TestStoreCounts(t *testing.T) {
	s := NewStore(t.TempDir(), "exec-diff%d/output")

	// A depth that was never run counts as zero everywhere.
	n, err := s.Count(0, schema.TraceLog)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = s.CountContaining(0, schema.ManipulationFlag, ManipulationMarker)
	require.NoError(t, err)
	assert.Zero(t, n)

	writeArtifact(t, s, 0, schema.TraceLog, "a", "Sahab spent time 1\n")
	writeArtifact(t, s, 0, schema.TraceLog, "b", "UI manipulation took 2 ms\n")
	writeArtifact(t, s, 0, schema.DiffComputerErrorLog, "a", "UI manipulation took 3 ms\nUI manipulation took 4 ms\n")
	writeArtifact(t, s, 0, schema.SahabReportRight, "a", "")
	writeArtifact(t, s, 0, schema.SahabReportRight, "b", "{}")
	writeArtifact(t, s, 0, schema.SahabReportLeft, "a", "{}")
	writeArtifact(t, s, 0, schema.StateDiffReport, "a", "<p>state only occurs in right</p>")
	writeArtifact(t, s, 0, schema.StateDiffReport, "b", "<p>same</p>")
	require.NoError(t, os.WriteFile(filepath.Join(s.KindDir(0, schema.StateDiffReport), "notes.txt"), []byte("only occurs"), 0o644))

	n, err = s.Count(0, schema.TraceLog)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	empty, nonEmpty, err := s.CountBySize(0, schema.SahabReportRight)
	require.NoError(t, err)
	assert.Equal(t, 1, empty)
	assert.Equal(t, 1, nonEmpty)

	n, err = s.CountContaining(0, schema.ManipulationFlag, ManipulationMarker)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "each file counts once no matter how many lines match")

	n, err = s.Count(0, schema.StateDiffReport)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.CountContaining(0, schema.StateDiffReport, DistinctStatesMarker)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, err := s.Keys(0, schema.StateDiffReport)
	require.NoError(t, err)
	assert.Equal(t, []schema.ArtifactKey{"a", "b"}, keys, "files outside the naming scheme carry no key")

	keys, err = s.Keys(0, schema.SahabReportRight)
	require.NoError(t, err)
	assert.Equal(t, []schema.ArtifactKey{"a", "b"}, keys)
}

func TestPresenceString(t *testing.T) {
	assert.Equal(t, "absent", Absent.String())
	assert.Equal(t, "empty", Empty.String())
	assert.Equal(t, "populated", Populated.String())
}
