package contract

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Log formats supported by NewLogger.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// NewLogger builds a slog logger writing to w. Text output goes through tint;
// json output uses the stdlib JSON handler. Logs never go to stdout because
// stdout carries reports and the MCP stdio protocol.
func NewLogger(w io.Writer, level, format string, color bool) *slog.Logger {
	logLevel := ParseLogLevel(level)

	var handler slog.Handler
	switch strings.ToLower(format) {
	case LogFormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
			NoColor:    !color,
		})
	}
	return slog.New(handler)
}

// ParseLogLevel maps a level name to a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
