// Package logging builds the slog loggers shared by jobd and jobctl.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// NewLogger returns a logger writing to w in format ("text" or "json").
// The threshold is read from level on every record, so passing a
// *slog.LevelVar lets a running daemon change it on config reload.
func NewLogger(level slog.Leveler, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Component tags every record of logger with the subsystem that wrote it.
func Component(logger *slog.Logger, name string, args ...any) *slog.Logger {
	return logger.With(append([]any{"component", name}, args...)...)
}

// LookupLevel parses a level name, rejecting anything it does not know.
func LookupLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ParseLevel is LookupLevel that falls back to INFO.
func ParseLevel(s string) slog.Level {
	lvl, _ := LookupLevel(s)
	return lvl
}

// CheckFormat reports whether format names a handler NewLogger can build.
func CheckFormat(format string) error {
	switch strings.ToLower(format) {
	case "", "text", "json":
		return nil
	}
	return fmt.Errorf("unknown log format %q: want text or json", format)
}
