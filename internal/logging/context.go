package logging

import (
	"context"
	"log/slog"

	"comicshelf/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. task_failed).
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldDecisionType names the decision recorded by DecisionAttrs.
	FieldDecisionType = "decision_type"
	// FieldTaskID is the persisted task queue record identifier.
	FieldTaskID = "task_id"
	// FieldTaskType is the task type tag.
	FieldTaskType = "task_type"
	// FieldJobID is the batch job identifier.
	FieldJobID = "job_id"
	// FieldExecutionID is the batch execution identifier.
	FieldExecutionID = "execution_id"
	// FieldComicID is the comic record identifier.
	FieldComicID = "comic_id"
	// FieldPageID is the page record identifier.
	FieldPageID = "page_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.TaskIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldTaskID, id))
	}
	if jobID, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, jobID))
	}
	if execID, ok := services.ExecutionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldExecutionID, execID))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
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
	return logger.With(Args(fields...)...)
}
