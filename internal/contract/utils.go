package contract

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/khaes-kth/drr-execdiff/schema"
)

// Outcome label constants.
const (
	DoneValue    = "Done"    // Done value
	SkippedValue = "Skipped" // Skipped value
	FailedValue  = "Failed"  // Failed value
	PendingValue = "Pending" // Pending value
)

// Color variables for console output.
var (
	DoneColor    = color.New(color.FgGreen, color.Bold) // DoneColor marks a run that produced its artifacts.
	SkippedColor = color.New(color.FgYellow)            // SkippedColor marks a no-op run, not an error.
	FailedColor  = color.New(color.FgRed, color.Bold)   // FailedColor marks an external-tool or checkout failure.
	PendingColor = color.New(color.FgCyan)              // PendingColor marks a run that stopped before a terminal state.
)

// GetPlainLabel returns a plain text label for a run state.
// This is the core logic used for CSV, JSON, and table printing.
func GetPlainLabel(state schema.RunState) string {
	switch state {
	case schema.Done:
		return DoneValue
	case schema.Skipped:
		return SkippedValue
	case schema.Failed:
		return FailedValue
	default:
		return PendingValue
	}
}

// GetColorLabel returns a colored text label for console output (table).
func GetColorLabel(state schema.RunState) string {
	text := GetPlainLabel(state)

	switch text {
	case DoneValue:
		return DoneColor.Sprint(text)
	case SkippedValue:
		return SkippedColor.Sprint(text)
	case FailedValue:
		return FailedColor.Sprint(text)
	default:
		return PendingColor.Sprint(text)
	}
}

// SelectOutputFile returns the appropriate file handle for output, based on the provided
// file path. An empty path means os.Stdout.
func SelectOutputFile(filePath string) (*os.File, error) {
	if filePath == "" {
		return os.Stdout, nil
	}
	return os.Create(filePath)
}

// LogFatal logs an error and exits the program.
func LogFatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

// LogWarn logs a warning message.
func LogWarn(msg string, err error) {
	slog.Warn(msg, "err", err)
}

// GetLedgerDBFilePath returns the path to the SQLite DB file for the execution ledger.
func GetLedgerDBFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".execdiff_ledger.db"
	}
	return filepath.Join(homeDir, ".execdiff_ledger.db")
}

// TruncatePath truncates a path to a maximum width with ellipsis prefix.
// Requires maxWidth > 3 to leave room for the "..." prefix.
func TruncatePath(path string, maxWidth int) string {
	runes := []rune(path)
	if len(runes) > maxWidth && maxWidth > 3 {
		return "..." + string(runes[len(runes)-maxWidth+3:])
	}
	return path
}

// ParseBoolString parses a string value into a boolean.
// Accepts "yes", "no", "true", "false", "1", "0" (case-insensitive).
func ParseBoolString(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "true", "1":
		return true, nil
	case "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean string: %s (expected yes/no/true/false/1/0)", s)
	}
}

// ExpandArgs substitutes {name} placeholders in every argument.
// Unknown placeholders are left untouched.
func ExpandArgs(templates []string, values map[string]string) []string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = r.Replace(t)
	}
	return out
}
