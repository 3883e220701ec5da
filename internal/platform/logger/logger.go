// Package logger wraps slog with the run/node/token fields the coordinator
// and executor attach to every line they emit.
package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/lmittmann/tint"
)

// Logger wraps slog.Logger with contextual fields.
type Logger struct {
	*slog.Logger
}

// New builds a Logger. format "json" uses slog's JSON handler (production);
// anything else uses tint for colored console output (development).
func New(level, format string) *Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.TimeOnly,
			AddSource:  false,
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

// Noop returns a Logger that discards everything, for tests that don't care.
func Noop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func (l *Logger) WithContext(ctx context.Context) *Logger {
	if traceID := ctx.Value(traceIDKey{}); traceID != nil {
		return &Logger{Logger: l.With("trace_id", traceID)}
	}
	return l
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.With(args...)}
}

func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{Logger: l.With("run_id", runID)}
}

func (l *Logger) WithNodeID(nodeRef string) *Logger {
	return &Logger{Logger: l.With("node_ref", nodeRef)}
}

func (l *Logger) WithTokenID(tokenID string) *Logger {
	return &Logger{Logger: l.With("token_id", tokenID)}
}

// Error logs with a stack trace attached, matching the teacher's convention
// that error-level logs always carry one.
func (l *Logger) Error(msg string, args ...any) {
	args = append(args, "stack", string(debug.Stack()))
	l.Logger.Error(msg, args...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	args = append(args, "stack", string(debug.Stack()))
	l.Logger.ErrorContext(ctx, msg, args...)
}

type traceIDKey struct{}

// WithTraceID stores a trace id on the context for WithContext to pick up.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
