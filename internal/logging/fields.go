package logging

import (
	"context"
	"log/slog"
	"strings"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID identifies one ffmpeg invocation across log lines, history, and the feed.
	FieldRunID = "run_id"
	// FieldEventType names what happened in machine-friendly form (e.g. progress_read_failed).
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldProgressStatus carries the continue/end marker of a progress record.
	FieldProgressStatus = "progress_status"
	// FieldProgressElapsed is the media time a progress record reports.
	FieldProgressElapsed = "progress_elapsed"
	// FieldProgressSpeed is the encode speed relative to real time.
	FieldProgressSpeed = "progress_speed"
	// FieldProgressPercent is the share of the input duration encoded so far.
	FieldProgressPercent = "progress_percent"
)

type contextKey int

const runIDKey contextKey = iota

// WithRunID stores a run identifier on ctx.
func WithRunID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, runIDKey, strings.TrimSpace(id))
}

// RunIDFromContext returns the run identifier stored by WithRunID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok && id != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if id, ok := RunIDFromContext(ctx); ok {
		return []slog.Attr{slog.String(FieldRunID, id)}
	}
	return nil
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
