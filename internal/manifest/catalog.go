package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/khaes-kth/drr-execdiff/schema"
)

// TestCatalog resolves the failing test classes of a bug from
// <dir>/<Project>-metadata.csv, where line N describes bug N and its last
// double-quoted field lists the triggering tests as Class::method separated
// by ';'.
type TestCatalog struct {
	dir string

	mu    sync.Mutex
	lines map[string][]string
}

// NewTestCatalog creates a catalog reading metadata files from dir lazily.
func NewTestCatalog(dir string) *TestCatalog {
	return &TestCatalog{dir: dir, lines: make(map[string][]string)}
}

// TestFor returns the distinct test classes of bug, in order of first
// appearance, joined with commas.
func (c *TestCatalog) TestFor(bug schema.BugID) (string, error) {
	lines, err := c.project(bug.Project)
	if err != nil {
		return "", err
	}
	if bug.Number < 0 || bug.Number >= len(lines) {
		return "", fmt.Errorf("bug %s has no row in %s metadata (%d rows)", bug, bug.Project, len(lines))
	}
	field, ok := lastQuotedField(lines[bug.Number])
	if !ok {
		return "", fmt.Errorf("bug %s metadata row has no quoted test field", bug)
	}
	classes := testClasses(field)
	if len(classes) == 0 {
		return "", fmt.Errorf("bug %s metadata lists no test", bug)
	}
	return strings.Join(classes, ","), nil
}

// Resolve picks the test of an entry: the manifest's own list first, the
// catalog otherwise.
func (c *TestCatalog) Resolve(e Entry, bug schema.BugID) (string, error) {
	var tests []string
	for _, t := range e.Tests {
		if t = strings.TrimSpace(t); t != "" {
			tests = append(tests, t)
		}
	}
	if len(tests) > 0 {
		return strings.Join(tests, ","), nil
	}
	if c == nil {
		return "", errors.New("no test catalog configured")
	}
	return c.TestFor(bug)
}

func (c *TestCatalog) project(name string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if lines, ok := c.lines[name]; ok {
		return lines, nil
	}

	path := filepath.Join(c.dir, name+"-metadata.csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading test metadata: %w", err)
	}
	defer func() { _ = f.Close() }()

	lines, err := readLines(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	c.lines[name] = lines
	return lines, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	return lines, scanner.Err()
}

// lastQuotedField returns the content of the last "..." pair on line.
func lastQuotedField(line string) (string, bool) {
	parts := strings.Split(line, `"`)
	if len(parts) < 3 {
		return "", false
	}
	return parts[len(parts)-2], true
}

// testClasses cuts each Class::method entry to its class and drops repeats.
func testClasses(field string) []string {
	var classes []string
	seen := make(map[string]bool)
	for _, entry := range strings.Split(field, ";") {
		class, _, _ := strings.Cut(strings.TrimSpace(entry), "::")
		if class == "" || seen[class] {
			continue
		}
		seen[class] = true
		classes = append(classes, class)
	}
	return classes
}
