package sigtree

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with sigtree-specific context.
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

// NewJSONLogger creates a Logger that writes JSON-formatted logs to w
// (os.Stderr if nil). level sets the minimum log level.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that writes human-readable text logs to w
// (os.Stderr if nil).
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.Level(1000),
		})),
	}
}

// WithBuildID tags all records with the id of one build.
func (l *Logger) WithBuildID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("build_id", id),
	}
}

// WithScheme adds the signature scheme name.
func (l *Logger) WithScheme(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("scheme", name),
	}
}

// WithCell adds a cell id field to the logger.
func (l *Logger) WithCell(cell uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("cell", cell),
	}
}

// LogStage logs the completion of a build stage.
func (l *Logger) LogStage(ctx context.Context, stage string, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "stage failed",
			"stage", stage,
			"count", count,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "stage completed",
			"stage", stage,
			"count", count,
		)
	}
}

// LogConsistency logs the outcome of a tree consistency check.
func (l *Logger) LogConsistency(ctx context.Context, cell int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "consistency check failed",
			"cell", cell,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "consistency check passed",
			"cell", cell,
		)
	}
}

// LogQueryMismatch logs a token query whose tree result misses oracle items.
func (l *Logger) LogQueryMismatch(ctx context.Context, m TokenMismatch) {
	args := []any{
		"token", m.Token,
		"oracle", m.Oracle,
		"tree", m.Tree,
		"missing", m.Missing,
		"invalid", m.Invalid,
	}
	if m.Cell != AllCells {
		args = append(args, "cell", m.Cell)
	}
	if m.Diagnosis != DiagnosisNone {
		args = append(args,
			"diagnosis", m.Diagnosis.String(),
			"correct", m.Exhaustive,
			"traversal_missing", m.TraversalMissing,
			"traversal_invalid", m.TraversalInvalid,
		)
	}
	l.WarnContext(ctx, "incorrect result for query string", args...)
}

// LogValidation logs the summary of a validation pass.
func (l *Logger) LogValidation(ctx context.Context, r *Report) {
	if r.Failed() {
		l.WarnContext(ctx, "validation completed with failures",
			"consistent", r.Consistent,
			"spatial_failures", len(r.SpatialFailures),
			"failed_queries", r.FailedQueries,
			"queries", r.Queries,
		)
	} else {
		l.InfoContext(ctx, "validation passed",
			"cells", r.CellsChecked,
			"queries", r.Queries,
		)
	}
}
