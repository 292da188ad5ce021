// Package manifest loads the patch lists that drive a pipeline run and the
// per-project test catalog.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/khaes-kth/drr-execdiff/schema"
	"gopkg.in/yaml.v3"
)

// Entry is one patch to run. Tests, when set, override the test catalog.
type Entry struct {
	Patch string   `yaml:"patch"`
	Tests []string `yaml:"tests,omitempty"`
}

// File is the YAML manifest layout.
type File struct {
	Patches []Entry `yaml:"patches"`
}

// Load reads a patch list. Files ending in .yaml or .yml are YAML manifests;
// anything else is a plain list with one branch per line.
func Load(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading patch list: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(f)
	default:
		return ParseList(f)
	}
}

// ParseYAML decodes a manifest of {patch, tests} entries.
func ParseYAML(r io.Reader) ([]Entry, error) {
	var m File
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parsing manifest YAML: %w", err)
	}
	entries := make([]Entry, 0, len(m.Patches))
	for i, e := range m.Patches {
		e.Patch = NormalizeBranch(e.Patch)
		if e.Patch == "" {
			return nil, fmt.Errorf("manifest entry %d has no patch", i)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ParseList reads one branch per line, as printed by `git branch -a`.
// Blank lines and # comments are skipped.
func ParseList(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if name := NormalizeBranch(line); name != "" {
			entries = append(entries, Entry{Patch: name})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading patch list: %w", err)
	}
	return entries, nil
}

// NormalizeBranch takes the last space-separated token of a branch listing
// line and strips remote prefixes, so "* remotes/origin/patch1-Time-5-Arja"
// becomes "patch1-Time-5-Arja".
func NormalizeBranch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	name := fields[len(fields)-1]
	name = strings.TrimPrefix(name, "remotes/")
	name = strings.TrimPrefix(name, "origin/")
	return name
}

// FilterProject keeps entries whose patch belongs to project. An empty
// project keeps everything.
func FilterProject(entries []Entry, project string) []Entry {
	if project == "" {
		return entries
	}
	return slices.DeleteFunc(slices.Clone(entries), func(e Entry) bool {
		id, err := schema.ParsePatchID(e.Patch)
		return err != nil || id.Bug.Project != project
	})
}

// ScanDir lists the patch files under dir, recursively, and derives their
// identities from the file stems. Files that do not parse are returned in
// skipped.
func ScanDir(dir string) (patches []schema.PatchID, skipped []string, err error) {
	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		id, perr := schema.ParsePatchID(entry.Name())
		if perr != nil {
			skipped = append(skipped, path)
			return nil
		}
		patches = append(patches, id)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scanning %s: %w", dir, err)
	}
	slices.SortFunc(patches, func(a, b schema.PatchID) int { return strings.Compare(a.Name, b.Name) })
	patches = slices.CompactFunc(patches, func(a, b schema.PatchID) bool { return a.Name == b.Name })
	return patches, skipped, nil
}

// GroupByBug groups patches by bug, bugs ordered by project then number.
func GroupByBug(patches []schema.PatchID) ([]schema.BugID, map[schema.BugID][]schema.PatchID) {
	groups := make(map[schema.BugID][]schema.PatchID)
	for _, p := range patches {
		groups[p.Bug] = append(groups[p.Bug], p)
	}
	bugs := make([]schema.BugID, 0, len(groups))
	for b := range groups {
		bugs = append(bugs, b)
	}
	slices.SortFunc(bugs, func(a, b schema.BugID) int {
		if c := strings.Compare(a.Project, b.Project); c != 0 {
			return c
		}
		return a.Number - b.Number
	})
	return bugs, groups
}
