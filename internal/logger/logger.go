// Package logger is the structured logging used across strata: a narrow
// interface over log/slog, a coloured handler for terminals and helpers to
// carry a logger through a context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Logger is what library packages log through. Tests and embedders may supply
// their own implementation.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// Format selects the output handler.
type Format string

const (
	FormatPretty Format = "pretty"
	FormatJSON   Format = "json"
	FormatText   Format = "text"
)

// ParseFormat resolves a --log-format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPretty, FormatJSON, FormatText:
		return f, nil
	case "":
		return FormatPretty, nil
	}
	return "", fmt.Errorf("unknown log format %q (expected pretty, json or text)", s)
}

// ParseLevel resolves a --log-level value. Names are case-insensitive.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

type slogLogger struct {
	logger *slog.Logger
}

// New wraps handler.
func New(handler slog.Handler) Logger {
	return &slogLogger{logger: slog.New(handler)}
}

// Open returns a logger writing format to w at level and above.
func Open(w io.Writer, format Format, level slog.Level) Logger {
	switch format {
	case FormatJSON:
		return JSON(w, level)
	case FormatText:
		return New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	default:
		return Pretty(w, level)
	}
}

// Default logs text to stderr at info level.
func Default() Logger {
	return Open(os.Stderr, FormatText, slog.LevelInfo)
}

// JSON logs one JSON object per record, with source positions.
func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true, Level: level}))
}

// Pretty logs coloured single lines for a terminal.
func Pretty(w io.Writer, level slog.Level) Logger {
	return New(NewPrettyHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard drops every record.
func Discard() Logger {
	return New(slog.DiscardHandler)
}

// WithRunID tags l with a fresh run id so the records of one invocation can
// be told apart in a shared log. The full id is returned.
func WithRunID(l Logger) (Logger, string) {
	id := uuid.NewString()
	return l.With("run", id[:8]), id
}

type loggerKey struct{}

// WithContext returns a context carrying l.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger carried by ctx, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return Default()
}

func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: l.logger.With(args...)}
}

func (l *slogLogger) WithGroup(name string) Logger {
	return &slogLogger{logger: l.logger.WithGroup(name)}
}
