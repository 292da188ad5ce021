package ledger

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/khaes-kth/drr-execdiff/schema"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateTableName keeps identifiers that are interpolated into SQL safe.
func validateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name: %s (must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$)", name)
	}
	return nil
}

// quoteTableName returns the properly quoted table name for the given backend.
func quoteTableName(name string, backend schema.DatabaseBackend) string {
	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf("`%s`", name)
	default: // SQLite and PostgreSQL
		return fmt.Sprintf("\"%s\"", name)
	}
}

// placeholders returns n bind parameters in the backend's syntax.
func placeholders(backend schema.DatabaseBackend, n int) string {
	parts := make([]string, n)
	for i := range parts {
		if backend == schema.PostgreSQLBackend {
			parts[i] = fmt.Sprintf("$%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// formatTime converts a time.Time to the appropriate format for the backend.
func formatTime(t time.Time, backend schema.DatabaseBackend) any {
	switch backend {
	case schema.SQLiteBackend:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return t
	}
}

// timeScanner scans a timestamp column regardless of how the backend stores it.
type timeScanner struct {
	backend schema.DatabaseBackend
	text    *string
	native  *time.Time
}

func newTimeScanner(backend schema.DatabaseBackend) *timeScanner {
	return &timeScanner{backend: backend, text: new(string), native: new(time.Time)}
}

// dest returns the Scan destination.
func (ts *timeScanner) dest() any {
	if ts.backend == schema.SQLiteBackend {
		return ts.text
	}
	return ts.native
}

func (ts *timeScanner) value() (time.Time, error) {
	if ts.backend == schema.SQLiteBackend {
		return time.Parse(time.RFC3339Nano, *ts.text)
	}
	return *ts.native, nil
}

// nullTimeScanner is timeScanner for nullable columns.
type nullTimeScanner struct {
	backend schema.DatabaseBackend
	text    *string
	native  *time.Time
}

func newNullTimeScanner(backend schema.DatabaseBackend) *nullTimeScanner {
	return &nullTimeScanner{backend: backend}
}

func (ts *nullTimeScanner) dest() any {
	if ts.backend == schema.SQLiteBackend {
		return &ts.text
	}
	return &ts.native
}

func (ts *nullTimeScanner) value() (*time.Time, error) {
	if ts.backend != schema.SQLiteBackend {
		return ts.native, nil
	}
	if ts.text == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *ts.text)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
