// Package outwriter has output and writer logic.
package outwriter

import (
	"os"
	"time"

	"github.com/khaes-kth/drr-execdiff/internal/contract"
	"github.com/khaes-kth/drr-execdiff/schema"
	"golang.org/x/term"
)

// OutWriter provides a unified interface for all output operations.
// It encapsulates the various output formats and provides a clean API for the core logic.
type OutWriter struct{}

// NewOutWriter creates a new instance of the output writer.
func NewOutWriter() *OutWriter {
	return &OutWriter{}
}

// WriteReport prints a depth report using the configured output format.
func (ow *OutWriter) WriteReport(report *schema.CorpusReport, cfg *contract.Config) error {
	return WriteReport(report, cfg)
}

// WriteRuns prints pipeline run outcomes using the configured output format.
func (ow *OutWriter) WriteRuns(records []schema.RunRecord, cfg *contract.Config, duration time.Duration) error {
	return WriteRuns(records, cfg, duration)
}

// WriteCorpus prints the comparable corpus using the configured output format.
func (ow *OutWriter) WriteCorpus(listing CorpusListing, cfg *contract.Config) error {
	return WriteCorpus(listing, cfg)
}

// WritePatches prints patches grouped by bug using the configured output format.
func (ow *OutWriter) WritePatches(rows []BugPatches, cfg *contract.Config) error {
	return WritePatches(rows, cfg)
}

// WriteLedgerStatus prints the ledger status using the configured output format.
func (ow *OutWriter) WriteLedgerStatus(status schema.LedgerStatus, cfg *contract.Config) error {
	return WriteLedgerStatus(status, cfg)
}

// GetMaxTablePathWidth calculates the maximum width for patch names and error
// text in table output based on terminal width.
func GetMaxTablePathWidth(cfg *contract.Config) int {
	var termWidth int

	// Check for absolute width override from flag/env
	if cfg.Width > 0 {
		termWidth = cfg.Width
	}

	if termWidth == 0 { // Not set by override
		detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || detectedWidth <= 0 {
			termWidth = 80 // Conservative default for narrow terminals and CI
		} else {
			termWidth = detectedWidth
		}
	}

	// Depth + Commit + Outcome + Reached + Tools + Time with borders/padding
	baseWidth := 95

	// Patch and Error share what is left
	available := (termWidth - baseWidth) / 2
	if available < 15 {
		return 15
	}
	if available > 60 {
		return 60
	}
	return available
}
