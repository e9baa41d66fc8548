package logging

import (
	"context"
	"log/slog"

	"medintake/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldFileID is the standardized structured logging key for session file identifiers.
	FieldFileID = "file_id"
	// FieldOperation is the standardized structured logging key for pipeline operation names.
	FieldOperation = "operation"
	// FieldPatientID is the standardized structured logging key for patient identifiers.
	FieldPatientID = "patient_id"
	// FieldDocumentID is the standardized structured logging key for document identifiers.
	FieldDocumentID = "document_id"
	// FieldRecordNumber is the standardized structured logging key for patient record numbers.
	FieldRecordNumber = "record_number"
	// FieldMatchTier is the standardized structured logging key for match tier labels.
	FieldMatchTier = "match_tier"
	// FieldConfidence is the standardized structured logging key for match confidence values.
	FieldConfidence = "confidence"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if id, ok := services.FileIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldFileID, id))
	}
	if op, ok := services.OperationFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldOperation, op))
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
	return logger.With(attrsToArgs(fields)...)
}
