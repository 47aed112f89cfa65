package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for job identifiers.
	FieldJobID = "job_id"
	// FieldItemID is an alias used by console formatting for whichever entity a log line concerns.
	FieldItemID = "job_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldLane is the standardized structured logging key for worker lane names.
	FieldLane = "lane"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
	// FieldEventType names the kind of event a log line represents.
	FieldEventType = "event_type"
	// FieldErrorHint carries a short, user-facing next step for a warning or error.
	FieldErrorHint = "error_hint"
	// FieldErrorCode carries a typed error kind (see internal error packages).
	FieldErrorCode = "error_code"
	// FieldErrorDetailPath points at a file holding the full error detail when it is too long to log inline.
	FieldErrorDetailPath = "error_detail_path"
	// FieldDecisionType names a decision point logged for observability (model selection, dispatch path, ...).
	FieldDecisionType = "decision_type"
	// FieldProgressStage names the stage a progress event belongs to.
	FieldProgressStage = "progress_stage"
	// FieldProgressPercent carries a progress fraction in [0,1] or a percentage in [0,100] depending on caller.
	FieldProgressPercent = "progress_percent"
	// FieldProgressMessage carries a human-readable progress message.
	FieldProgressMessage = "progress_message"
	// FieldProgressETA carries an estimated seconds-remaining value.
	FieldProgressETA = "progress_eta_seconds"
)

type ctxKey int

const (
	ctxKeyJobID ctxKey = iota
	ctxKeyStage
	ctxKeyLane
	ctxKeyCorrelationID
)

// WithJobID attaches a job identifier to the context for log correlation.
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, ctxKeyJobID, jobID)
}

// WithStage attaches a stage name to the context for log correlation.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ctxKeyStage, stage)
}

// WithLane attaches a worker lane name to the context for log correlation.
func WithLane(ctx context.Context, lane string) context.Context {
	return context.WithValue(ctx, ctxKeyLane, lane)
}

// WithCorrelationID attaches a request correlation id to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID, id)
}

func jobIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyJobID).(string)
	return v, ok && v != ""
}

func stageFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyStage).(string)
	return v, ok && v != ""
}

func laneFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyLane).(string)
	return v, ok && v != ""
}

func correlationIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyCorrelationID).(string)
	return v, ok && v != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := jobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if stage, ok := stageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if lane, ok := laneFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldLane, lane))
	}
	if rid, ok := correlationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
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
