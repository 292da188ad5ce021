// Package logrec extracts timing records from the free-text logs written by
// the trace collector and the analyzer.
package logrec

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/khaes-kth/drr-execdiff/schema"
)

// maxLineSize bounds a single log line. Analyzer stderr can carry long stack traces.
const maxLineSize = 4 * 1024 * 1024

// Rule maps a substring marker to the token holding its value.
// OffsetFromEnd counts whitespace-separated tokens from the end of the line:
// 1 is the last token, 2 the one before it.
type Rule struct {
	Marker        string
	Kind          schema.RecordKind
	OffsetFromEnd int
}

// MarkerTable is an ordered set of rules. A line matching several markers
// yields one record per matching rule, in table order.
type MarkerTable []Rule

// DefaultTraceTable recognizes trace collector stdout, e.g. "Sahab spent time 1234".
var DefaultTraceTable = MarkerTable{
	{Marker: "Sahab spent time", Kind: schema.SahabTime, OffsetFromEnd: 1},
}

// DefaultDiffTable recognizes analyzer stderr, e.g. "diff computation took 12 ms".
var DefaultDiffTable = MarkerTable{
	{Marker: "UI manipulation", Kind: schema.UIManipulationTime, OffsetFromEnd: 2},
	{Marker: "diff computation took", Kind: schema.DiffComputationTime, OffsetFromEnd: 2},
	{Marker: "line mappings and vars computation", Kind: schema.LineVarMappingTime, OffsetFromEnd: 2},
}

// MalformedLineError reports a recognized marker line whose value token is
// missing or not an integer. The record is dropped; parsing continues.
type MalformedLineError struct {
	Line   int
	Marker string
	Token  string
}

func (e *MalformedLineError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("line %d: %q has no value token", e.Line, e.Marker)
	}
	return fmt.Sprintf("line %d: %q has non-integer value %q", e.Line, e.Marker, e.Token)
}

// ParseLines yields the records found in lines. Unrecognized lines are
// skipped; malformed marker lines yield a *MalformedLineError in place of a
// record. Line numbers are 1-based.
func ParseLines(lines []string, table MarkerTable) iter.Seq2[schema.LogRecord, error] {
	return func(yield func(schema.LogRecord, error) bool) {
		for i, line := range lines {
			if !parseLine(i+1, line, table, yield) {
				return
			}
		}
	}
}

// Parse is ParseLines over a reader. A read error is yielded last and ends
// the sequence.
func Parse(r io.Reader, table MarkerTable) iter.Seq2[schema.LogRecord, error] {
	return func(yield func(schema.LogRecord, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		n := 0
		for scanner.Scan() {
			n++
			if !parseLine(n, scanner.Text(), table, yield) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(schema.LogRecord{}, fmt.Errorf("read log after line %d: %w", n, err))
		}
	}
}

func parseLine(n int, line string, table MarkerTable, yield func(schema.LogRecord, error) bool) bool {
	var fields []string
	for _, rule := range table {
		if !strings.Contains(line, rule.Marker) {
			continue
		}
		if fields == nil {
			fields = strings.Fields(line)
		}
		rec, err := extract(n, fields, rule)
		if err != nil {
			if !yield(schema.LogRecord{}, err) {
				return false
			}
			continue
		}
		if !yield(rec, nil) {
			return false
		}
	}
	return true
}

func extract(n int, fields []string, rule Rule) (schema.LogRecord, error) {
	idx := len(fields) - rule.OffsetFromEnd
	if rule.OffsetFromEnd < 1 || idx < 0 {
		return schema.LogRecord{}, &MalformedLineError{Line: n, Marker: rule.Marker}
	}
	token := fields[idx]
	v, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return schema.LogRecord{}, &MalformedLineError{Line: n, Marker: rule.Marker, Token: token}
	}
	return schema.LogRecord{Kind: rule.Kind, Value: v, Line: n}, nil
}
