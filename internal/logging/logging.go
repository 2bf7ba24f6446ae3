// Package logging builds the slog loggers used across rmsched.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options mirrors the log_level and log_format keys of rmsched.yml.
type Options struct {
	Level  string    // debug, info, warn, error
	Format string    // text (human-readable) or json (structured)
	Writer io.Writer // defaults to stderr
}

// New creates the process logger. Every record carries service=rmsched,
// and durations (periods, budgets) are rendered as "50ms" in both formats.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{
		Level:       ParseLevel(opts.Level),
		ReplaceAttr: durationsAsText,
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, hopts)
	default:
		handler = slog.NewTextHandler(w, hopts)
	}

	return slog.New(handler).With("service", "rmsched")
}

// Component returns l tagged with the component name, falling back to
// slog.Default() when l is nil.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", name)
}

// durationsAsText keeps JSON output from printing periods as raw nanoseconds.
func durationsAsText(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		return slog.String(a.Key, a.Value.Duration().String())
	}
	return a
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
