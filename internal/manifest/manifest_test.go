package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khaes-kth/drr-execdiff/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeBranch(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"patch1-Time-5-Arja", "patch1-Time-5-Arja"},
		{"  remotes/origin/patch1-Time-5-Arja", "patch1-Time-5-Arja"},
		{"origin/patch2-Math-80-Kali", "patch2-Math-80-Kali"},
		{"* patch3-Lang-1-jGenProg", "patch3-Lang-1-jGenProg"},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeBranch(tt.input))
		})
	}
}

func TestParseList(t *testing.T) {
	input := `
# branches to run
  remotes/origin/patch1-Time-5-Arja
* patch2-Time-7-Kali

origin/patch1-Math-80-Arja
`
	entries, err := ParseList(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Patch: "patch1-Time-5-Arja"},
		{Patch: "patch2-Time-7-Kali"},
		{Patch: "patch1-Math-80-Arja"},
	}, entries)
}

func TestParseYAML(t *testing.T) {
	input := `
patches:
  - patch: origin/patch1-Time-5-Arja
    tests: [org.joda.time.TestPeriod::testFoo]
  - patch: patch2-Time-7-Kali
`
	entries, err := ParseYAML(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Patch: "patch1-Time-5-Arja", Tests: []string{"org.joda.time.TestPeriod::testFoo"}},
		{Patch: "patch2-Time-7-Kali"},
	}, entries)

	_, err = ParseYAML(strings.NewReader("patches:\n  - tests: [a]\n"))
	assert.Error(t, err, "an entry without a patch is rejected")

	_, err = ParseYAML(strings.NewReader("patches: {"))
	assert.Error(t, err)

	entries, err = ParseYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "branches.txt")
	yml := filepath.Join(dir, "patches.yml")
	require.NoError(t, os.WriteFile(txt, []byte("patch1-Time-5-Arja\n"), 0o644))
	require.NoError(t, os.WriteFile(yml, []byte("patches:\n  - patch: patch1-Time-5-Arja\n"), 0o644))

	for _, path := range []string{txt, yml} {
		entries, err := Load(path)
		require.NoError(t, err, path)
		assert.Equal(t, []Entry{{Patch: "patch1-Time-5-Arja"}}, entries)
	}

	_, err := Load(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestFilterProject(t *testing.T) {
	entries := []Entry{
		{Patch: "patch1-Time-5-Arja"},
		{Patch: "patch1-Math-80-Arja"},
		{Patch: "not-a-patch"},
		{Patch: "patch2-Time-7-Kali"},
	}
	assert.Equal(t, entries, FilterProject(entries, ""))
	assert.Equal(t, []Entry{
		{Patch: "patch1-Time-5-Arja"},
		{Patch: "patch2-Time-7-Kali"},
	}, FilterProject(entries, "Time"))
	assert.Len(t, entries, 4, "input must not be modified")
}

func TestScanDirAndGroup(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"Arja/Time/patch1-Time-5-Arja.patch",
		"Kali/Time/patch2-Time-5-Kali.patch",
		"Kali/Math/patch1-Math-80-Kali.patch",
		"Kali/Math/patch1-Math-7-Kali.patch",
		"README",
	} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("diff"), 0o644))
	}

	patches, skipped, err := ScanDir(dir)
	require.NoError(t, err)
	assert.Len(t, patches, 4)
	assert.Equal(t, []string{filepath.Join(dir, "README")}, skipped)

	bugs, groups := GroupByBug(patches)
	assert.Equal(t, []schema.BugID{
		{Project: "Math", Number: 7},
		{Project: "Math", Number: 80},
		{Project: "Time", Number: 5},
	}, bugs)
	assert.Len(t, groups[schema.BugID{Project: "Time", Number: 5}], 2)

	_, _, err = ScanDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
