package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for structured logging.
// Use these constants instead of raw strings so log queries stay stable.
const (
	// Identity and context
	FieldRequestID = "request_id"
	FieldWorkflow  = "workflow"
	FieldJobID     = "job_id"
	FieldWorkerID  = "worker_id"
	FieldEmail     = "email"

	// Components
	FieldComponent = "component"
	FieldService   = "service"

	// Operations
	FieldOperation = "operation"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldReport    = "report"
	FieldForm      = "form"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError     = "error"
	FieldErrorCode = "error_code"

	// Outcomes
	FieldStatus   = "status"
	FieldCount    = "count"
	FieldAttempt  = "attempt"
	FieldDistance = "distance_miles"
)

type contextKey string

const (
	requestIDKey contextKey = "logger_request_id"
	workflowKey  contextKey = "logger_workflow"
)

// WithRequestID adds a request ID to the context for logging
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithWorkflow adds the workflow name (assign, clock_in, ...) to the context for logging
func WithWorkflow(ctx context.Context, workflow string) context.Context {
	return context.WithValue(ctx, workflowKey, workflow)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if requestID, ok := ctx.Value(requestIDKey).(string); ok && requestID != "" {
		fields = append(fields, FieldRequestID, requestID)
	}
	if workflow, ok := ctx.Value(workflowKey).(string); ok && workflow != "" {
		fields = append(fields, FieldWorkflow, workflow)
	}

	return fields
}

// FromContext returns base enriched with the request-scoped fields in ctx.
// A nil base falls back to the global Logger.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
//	client := records.NewClient(records.Config{
//	    Logger: logger.ComponentLogger("records"),
//	})
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
