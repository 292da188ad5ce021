// Package artifact provides read access to the per-depth artifact layout
// written by the pipeline and its external tools.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/khaes-kth/drr-execdiff/schema"
)

// ErrMissing is returned by Open when the artifact does not exist.
// Absence is an expected state, so callers usually branch on it with errors.Is.
var ErrMissing = errors.New("artifact missing")

// Markers searched for in artifact contents.
const (
	ManipulationMarker   = "UI manipulation"
	DistinctStatesMarker = "only occurs"
)

// Presence distinguishes a missing artifact from an empty or populated one.
type Presence int

// Presence values.
const (
	Absent Presence = iota
	Empty
	Populated
)

func (p Presence) String() string {
	switch p {
	case Empty:
		return "empty"
	case Populated:
		return "populated"
	default:
		return "absent"
	}
}

// kindSpec locates one artifact kind relative to a depth's output directory.
type kindSpec struct {
	dir    string // directory holding the kind
	glob   string // count pattern relative to the depth dir
	prefix string // file name prefix before the key
	suffix string // file name suffix after the key
	nested string // file name inside a per-key directory
	marker string // content marker that makes a file count as this kind
}

var kinds = map[schema.ArtifactKind]kindSpec{
	schema.TraceLog:             {dir: "logs", glob: "logs/sahab_*.log", prefix: "sahab_", suffix: ".log"},
	schema.DiffComputerErrorLog: {dir: "logs", glob: "logs/diff_computer_*.err", prefix: "diff_computer_", suffix: ".err"},
	schema.SahabReportLeft:      {dir: "sahab-reports", glob: "sahab-reports/*/left.json", nested: "left.json"},
	schema.SahabReportRight:     {dir: "sahab-reports", glob: "sahab-reports/*/right.json", nested: "right.json"},
	schema.StateDiffReport:      {dir: "state_diffs", glob: "state_diffs/*", prefix: "state_diff_", suffix: ".html"},
	schema.ManipulationFlag:     {dir: "logs", glob: "logs/diff_computer_*.err", prefix: "diff_computer_", suffix: ".err", marker: ManipulationMarker},
}

// Store is a view over exec-diff{D}/output style directories.
type Store struct {
	root     string
	depthDir string
}

// NewStore creates a store rooted at root. depthDir is a relative layout with
// a %d verb for the depth, e.g. "exec-diff%d/output".
func NewStore(root, depthDir string) *Store {
	return &Store{root: root, depthDir: depthDir}
}

// DepthDir returns the output directory of a depth.
func (s *Store) DepthDir(d schema.Depth) string {
	return filepath.Join(s.root, fmt.Sprintf(s.depthDir, int(d)))
}

// KindDir returns the directory holding a kind at a depth.
func (s *Store) KindDir(d schema.Depth, kind schema.ArtifactKind) string {
	return filepath.Join(s.DepthDir(d), lookup(kind).dir)
}

// Path returns where the artifact for key lives, whether or not it exists.
func (s *Store) Path(d schema.Depth, kind schema.ArtifactKind, key schema.ArtifactKey) string {
	layout := lookup(kind)
	if layout.nested != "" {
		return filepath.Join(s.DepthDir(d), layout.dir, string(key), layout.nested)
	}
	return filepath.Join(s.DepthDir(d), layout.dir, layout.prefix+string(key)+layout.suffix)
}

// Stat reports the presence of an artifact. Only I/O errors on a path that
// exists are returned as errors. For marker kinds a file without the marker
// is Absent.
func (s *Store) Stat(d schema.Depth, kind schema.ArtifactKind, key schema.ArtifactKey) (Presence, error) {
	path := s.Path(d, kind, key)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Absent, nil
	}
	if err != nil {
		return Absent, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Absent, nil
	}
	if marker := lookup(kind).marker; marker != "" {
		ok, err := fileContains(path, marker)
		if err != nil {
			return Absent, err
		}
		if !ok {
			return Absent, nil
		}
	}
	if info.Size() == 0 {
		return Empty, nil
	}
	return Populated, nil
}

// Exists reports whether an artifact is present, empty or not.
func (s *Store) Exists(d schema.Depth, kind schema.ArtifactKind, key schema.ArtifactKey) (bool, error) {
	p, err := s.Stat(d, kind, key)
	return p != Absent, err
}

// Open returns a reader over an artifact. A missing artifact yields an error
// wrapping ErrMissing.
func (s *Store) Open(d schema.Depth, kind schema.ArtifactKind, key schema.ArtifactKey) (io.ReadCloser, error) {
	path := s.Path(d, kind, key)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s for %s at depth %d: %w", kind, key, d, ErrMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Create opens an artifact for writing, creating parent directories and
// truncating an existing file.
func (s *Store) Create(d schema.Depth, kind schema.ArtifactKind, key schema.ArtifactKey) (*os.File, error) {
	path := s.Path(d, kind, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", path, err)
	}
	return os.Create(path)
}

// Count returns the number of files matching a kind's pattern at a depth.
// A missing directory counts as zero.
func (s *Store) Count(d schema.Depth, kind schema.ArtifactKind) (int, error) {
	files, err := s.files(d, kind)
	return len(files), err
}

// CountBySize splits the files of a kind into zero-byte and non-empty ones.
func (s *Store) CountBySize(d schema.Depth, kind schema.ArtifactKind) (empty, nonEmpty int, err error) {
	files, err := s.files(d, kind)
	if err != nil {
		return 0, 0, err
	}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return 0, 0, fmt.Errorf("stat %s: %w", f, err)
		}
		if info.Size() == 0 {
			empty++
		} else {
			nonEmpty++
		}
	}
	return empty, nonEmpty, nil
}

// CountContaining counts regular files anywhere under a kind's directory whose
// content contains needle. Each file counts at most once.
func (s *Store) CountContaining(d schema.Depth, kind schema.ArtifactKind, needle string) (int, error) {
	dir := s.KindDir(d, kind)
	count := 0
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		ok, err := fileContains(path, needle)
		if err != nil {
			return err
		}
		if ok {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}
	return count, nil
}

// Keys derives artifact keys from the file names of a kind at a depth.
// Files that do not follow the kind's naming are ignored.
func (s *Store) Keys(d schema.Depth, kind schema.ArtifactKind) ([]schema.ArtifactKey, error) {
	layout := lookup(kind)
	files, err := s.files(d, kind)
	if err != nil {
		return nil, err
	}
	var keys []schema.ArtifactKey
	for _, f := range files {
		var name string
		if layout.nested != "" {
			name = filepath.Base(filepath.Dir(f))
		} else {
			base := filepath.Base(f)
			if !strings.HasPrefix(base, layout.prefix) || !strings.HasSuffix(base, layout.suffix) {
				continue
			}
			name = strings.TrimSuffix(strings.TrimPrefix(base, layout.prefix), layout.suffix)
		}
		if name != "" {
			keys = append(keys, schema.ArtifactKey(name))
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

// files lists regular files matching the kind's glob.
func (s *Store) files(d schema.Depth, kind schema.ArtifactKind) ([]string, error) {
	pattern := filepath.Join(s.DepthDir(d), filepath.FromSlash(lookup(kind).glob))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
	}
	files := matches[:0]
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", m, err)
		}
		if info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	return files, nil
}

func lookup(kind schema.ArtifactKind) kindSpec {
	layout, ok := kinds[kind]
	if !ok {
		panic(fmt.Sprintf("artifact: unknown kind %q", kind))
	}
	return layout
}

func fileContains(path, needle string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	return bytes.Contains(data, []byte(needle)), nil
}
