package services

import "context"

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	fileIDKey    contextKey = "file_id"
	operationKey contextKey = "operation"
	requestIDKey contextKey = "request_id"
)

// WithSessionID annotates context with the ingestion session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithFileID annotates context with the session file identifier.
func WithFileID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, fileIDKey, id)
}

// FileIDFromContext extracts the session file identifier if present.
func FileIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(fileIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithOperation annotates context with the pipeline operation name.
func WithOperation(ctx context.Context, operation string) context.Context {
	if operation == "" {
		return ctx
	}
	return context.WithValue(ctx, operationKey, operation)
}

// OperationFromContext returns the operation name if present.
func OperationFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(operationKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
