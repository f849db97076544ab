package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds a structured JSON logger writing to w. AddSource is on;
// the agents run as single binaries and the file:line costs nothing
// we care about.
func New(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     levelFromString(level),
		AddSource: true,
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// NewLogger is the production default: JSON to stdout.
func NewLogger(level string) *slog.Logger {
	return New(os.Stdout, level)
}

// Nop discards everything. Default for tests and optional components
// that run without a logger.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func levelFromString(level string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
