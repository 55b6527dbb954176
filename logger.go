package indexmerge

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with merge-specific helpers.
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
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithTask tags the logger with a merge task name.
func (l *Logger) WithTask(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("task", name),
	}
}

// WithIndex adds the index name and kind.
func (l *Logger) WithIndex(kind, name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("type", kind, "index", name),
	}
}

// LogMergeStart logs the start of one index merge.
func (l *Logger) LogMergeStart(ctx context.Context, kind, name, segments string, memBytes int64) {
	l.InfoContext(ctx, "index merge started",
		"type", kind,
		"index", name,
		"segments", segments,
		"estimated_memory", memBytes,
	)
}

// LogMergeDone logs the outcome of one index merge.
func (l *Logger) LogMergeDone(ctx context.Context, kind, name string, docs uint32, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index merge failed",
			"type", kind,
			"index", name,
			"duration", duration,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index merge finished",
			"type", kind,
			"index", name,
			"docs", docs,
			"duration", duration,
		)
	}
}

// LogTargets logs the segment_info records written for a finished plan.
func (l *Logger) LogTargets(ctx context.Context, targets []TargetResult, err error) {
	if err != nil {
		l.ErrorContext(ctx, "writing target segment info failed",
			"targets", len(targets),
			"error", err,
		)
		return
	}
	for _, t := range targets {
		l.DebugContext(ctx, "target segment sealed",
			"segment", t.SegmentID,
			"docs", t.DocCount,
			"indexes", len(t.Indexes),
		)
	}
}
