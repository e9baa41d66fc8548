package services

import (
	"errors"
	"fmt"
	"strings"

	"medintake/internal/registry"
)

var (
	ErrExternal      = errors.New("external service error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// Kind classifies a service failure for logging and review routing.
type Kind string

const (
	KindExternal      Kind = "external"
	KindValidation    Kind = "validation"
	KindConfiguration Kind = "configuration"
	KindNotFound      Kind = "not_found"
	KindTimeout       Kind = "timeout"
	KindTransient     Kind = "transient"
	KindUnknown       Kind = "unknown"
)

func kindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrExternal):
		return KindExternal
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}

// Error carries classification and component context for a failed operation.
type Error struct {
	Kind      Kind
	Component string
	Operation string
	Message   string
	Hint      string
	Code      string
	Err       error

	marker error
}

func (e *Error) Error() string {
	detail := buildDetail(e.Component, e.Operation, e.Message)
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.marker, detail, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.marker, detail)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.marker, e.Err}
	}
	return []error{e.marker}
}

// Wrap builds an error that includes component context while tagging it with
// the provided marker for later status classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &Error{
		Kind:      kindOf(marker),
		Component: strings.TrimSpace(component),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Err:       err,
		marker:    marker,
	}
}

// WithHint attaches remediation guidance to a wrapped service error. Errors
// produced elsewhere pass through unchanged.
func WithHint(err error, hint string) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		clone := *svcErr
		clone.Hint = strings.TrimSpace(hint)
		return &clone
	}
	return err
}

// WithCode attaches a protocol or tool code (such as an HTTP status) to a
// wrapped service error.
func WithCode(err error, code string) error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		clone := *svcErr
		clone.Code = strings.TrimSpace(code)
		return &clone
	}
	return err
}

// ErrorDetails exposes the structured fields of a service error for logging.
type ErrorDetails struct {
	Kind      Kind
	Component string
	Operation string
	Message   string
	Hint      string
	Code      string
	Cause     error
}

// Details extracts structured failure information from an error chain. Plain
// errors classify by sentinel marker with the full message preserved.
func Details(err error) ErrorDetails {
	details := ErrorDetails{Kind: KindUnknown}
	if err == nil {
		return details
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		details.Kind = svcErr.Kind
		details.Component = svcErr.Component
		details.Operation = svcErr.Operation
		details.Message = svcErr.Message
		details.Hint = svcErr.Hint
		details.Code = svcErr.Code
		details.Cause = svcErr.Err
		return details
	}
	details.Kind = kindOf(err)
	details.Message = err.Error()
	return details
}

// FailureStatus maps a pipeline error to the file status that should be
// persisted after the step fails. Validation, configuration, and not-found
// failures route to review; everything else marks the file failed.
func FailureStatus(err error) registry.FileStatus {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return registry.FileReview
	default:
		return registry.FileFailed
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component != "" {
		parts = append(parts, component)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
