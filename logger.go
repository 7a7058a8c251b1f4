package membank

import (
	"context"
	"log/slog"
	"math"
	"os"
	"time"
)

// Logger wraps slog.Logger with membank-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithK adds a k (neighbor count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{
		Logger: l.Logger.With("k", k),
	}
}

// WithDimension adds a dimension field to the logger.
func (l *Logger) WithDimension(dim int) *Logger {
	return &Logger{
		Logger: l.Logger.With("dimension", dim),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogUpdate logs a bank update.
func (l *Logger) LogUpdate(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "update failed",
			"count", count,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "update completed",
			"count", count,
		)
	}
}

// LogFillProgress logs population progress.
func (l *Logger) LogFillProgress(ctx context.Context, batch, written, capacity int) {
	l.InfoContext(ctx, "filling memory bank",
		"batch", batch,
		"written", written,
		"capacity", capacity,
	)
}

// LogFill logs the outcome of a population pass.
func (l *Logger) LogFill(ctx context.Context, batches, written int, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "fill failed",
			"batches", batches,
			"written", written,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "memory bank filled",
			"batches", batches,
			"written", written,
			"elapsed", elapsed,
		)
	}
}

// LogMine logs a neighbor mining run.
func (l *Logger) LogMine(ctx context.Context, n, k int, accuracy float64, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "mining failed",
			"n", n,
			"k", k,
			"error", err,
		)
		return
	}
	attrs := []any{"n", n, "k", k, "elapsed", elapsed}
	if !math.IsNaN(accuracy) {
		attrs = append(attrs, "accuracy", accuracy)
	}
	l.InfoContext(ctx, "mined nearest neighbors", attrs...)
}

// LogPredict logs a kNN prediction.
func (l *Logger) LogPredict(ctx context.Context, queries, k int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "predict failed",
			"queries", queries,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "predict completed",
			"queries", queries,
			"k", k,
		)
	}
}

// LogSave logs a neighbor artifact write.
func (l *Logger) LogSave(ctx context.Context, name string, rows, k int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"artifact", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "saved neighbors",
			"artifact", name,
			"rows", rows,
			"k", k,
		)
	}
}
