package logrec

import (
	"errors"
	"strings"
	"testing"
)

// FuzzParseLines fuzzes the diff table with random log lines.
func FuzzParseLines(f *testing.F) {
	seeds := []string{
		"diff computation took 12 ms",
		"UI manipulation 3 ms",
		"line mappings and vars computation 7 ms",
		"diff computation took ms",
		"diff computation took 12",
		"UI manipulation diff computation took 1 2",
		"",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		lines := strings.Split(input, "\n")
		matched := 0
		for _, line := range lines {
			for _, rule := range DefaultDiffTable {
				if strings.Contains(line, rule.Marker) {
					matched++
				}
			}
		}

		yielded := 0
		for rec, err := range ParseLines(lines, DefaultDiffTable) {
			yielded++
			if err != nil {
				var malformed *MalformedLineError
				if !errors.As(err, &malformed) {
					t.Errorf("unexpected error type %T: %v", err, err)
				}
				continue
			}
			if rec.Line < 1 || rec.Line > len(lines) {
				t.Errorf("record line %d outside [1, %d]", rec.Line, len(lines))
			}
		}
		if yielded != matched {
			t.Errorf("yielded %d results for %d marker matches", yielded, matched)
		}
	})
}
