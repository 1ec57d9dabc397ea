package logging

import (
	"context"
	"log/slog"

	"courseopt/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldCourseID is the standardized structured logging key for course identifiers.
	FieldCourseID = "course_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldCorrelationID is the standardized structured logging key for run correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering (stage_start, orphan_removed, ...).
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to do next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAsset is the static-relative asset path a line refers to.
	FieldAsset = "asset"
)

// WithContext binds the course id, stage, and run id carried by ctx to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var args []any
	add := func(key string, value string, ok bool) {
		if ok {
			args = append(args, slog.String(key, value))
		}
	}
	id, ok := services.CourseIDFromContext(ctx)
	add(FieldCourseID, id, ok)
	stage, ok := services.StageFromContext(ctx)
	add(FieldStage, stage, ok)
	rid, ok := services.RequestIDFromContext(ctx)
	add(FieldCorrelationID, rid, ok)
	if len(args) == 0 {
		return logger
	}
	return logger.With(args...)
}
