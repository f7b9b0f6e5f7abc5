// Package logger builds the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the structured logger shared by the service packages.
type Logger = slog.Logger

// ParseLevel maps a configured level name to a slog level. Unknown names
// fall back to info.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// New creates a logger writing to w. format is "json" or "text".
func New(w io.Writer, level, format string) *Logger {
	lvl, ok := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)
	if !ok {
		l.Warn("invalid log level configured, using info", "configured_level", level)
	}
	return l
}

// Setup installs a stdout logger as the slog default and returns it.
func Setup(level, format string) *Logger {
	l := New(os.Stdout, level, format)
	slog.SetDefault(l)
	return l
}
