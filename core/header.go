package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/khaes-kth/drr-execdiff/internal/contract"
)

var headerColor = color.New(color.FgHiBlue, color.Bold)

// headerWriter is where headers go. Stdout is left to reports.
var headerWriter io.Writer = os.Stderr

func rootName(path string) string {
	name := filepath.Base(path)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "current"
	}
	return name
}

// logReportHeader prints a 2-line header before aggregation.
func logReportHeader(cfg *contract.Config) {
	_, _ = headerColor.Fprintf(headerWriter, "🔎 Experiment: %s (%d depths, reference depth %d)\n", rootName(cfg.Root), cfg.Depths, cfg.ReferenceDepth)
	_, _ = fmt.Fprintf(headerWriter, "📂 Layout: %s\n", filepath.Join(cfg.Root, cfg.DepthDir))
}

// logRunHeader prints a 2-line header before the pipeline starts.
func logRunHeader(cfg *contract.Config, patches int) {
	_, _ = headerColor.Fprintf(headerWriter, "🔎 Repo: %s (%d patches)\n", rootName(cfg.RepoPath), patches)
	_, _ = fmt.Fprintf(headerWriter, "📐 Depths: %v into %s\n", cfg.SelectedDepths(), filepath.Join(cfg.Root, cfg.DepthDir))
}
