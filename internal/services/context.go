package services

import "context"

type contextKey int

const (
	courseIDKey contextKey = iota
	stageKey
	requestIDKey
)

// WithCourseID annotates ctx with the course identifier.
func WithCourseID(ctx context.Context, id string) context.Context {
	return withValue(ctx, courseIDKey, id)
}

// CourseIDFromContext returns the course identifier, if any.
func CourseIDFromContext(ctx context.Context) (string, bool) {
	return value(ctx, courseIDKey)
}

// WithStage annotates ctx with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name, if any.
func StageFromContext(ctx context.Context) (string, bool) {
	return value(ctx, stageKey)
}

// WithRequestID annotates ctx with the run correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the run correlation id, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return value(ctx, requestIDKey)
}

// Empty values leave ctx untouched so an outer value is never masked.
func withValue(ctx context.Context, key contextKey, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func value(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}
