package errors

import (
	"errors"
	"fmt"
)

// ErrorType categorizes engine errors. Validation errors are caller mistakes
// and are never retried; computation errors are numerically degenerate inputs
// with no fallback; dependency errors come from the upstream data layer.
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeComputation ErrorType = "computation"
	ErrorTypeDependency  ErrorType = "dependency"
	ErrorTypeInternal    ErrorType = "internal"
)

// AppError is an engine error with enough context (operation, metric id,
// parameter values) to reproduce the failure.
type AppError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code so callers can compare against constructed
// sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithContext attaches a key/value pair to the error.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithOperation records the operation and metric the error occurred in.
func (e *AppError) WithOperation(op, metricID string) *AppError {
	e.WithContext("operation", op)
	if metricID != "" {
		e.WithContext("metric_id", metricID)
	}
	return e
}

// HTTPStatus maps the error type to an HTTP status code for the request
// boundary.
func (e *AppError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeValidation:
		return 400
	case ErrorTypeDependency:
		if e.Code == CodeNoData {
			return 404
		}
		return 502
	case ErrorTypeComputation:
		return 422
	default:
		return 500
	}
}

// NewAppError creates an error of the given type.
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{Type: errType, Code: code, Message: message}
}

// WrapError wraps an existing error with engine context.
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{Type: errType, Code: code, Message: message, Cause: err}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewComputationError creates a computation error.
func NewComputationError(code, message string) *AppError {
	return NewAppError(ErrorTypeComputation, code, message)
}

// NewDependencyError creates a dependency error.
func NewDependencyError(code, message string) *AppError {
	return NewAppError(ErrorTypeDependency, code, message)
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// As delegates to the standard library so callers need only one errors import.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is delegates to the standard library so callers need only one errors import.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsComputation reports whether err is a computation error.
func IsComputation(err error) bool {
	return isType(err, ErrorTypeComputation)
}

// IsDependency reports whether err is a dependency error.
func IsDependency(err error) bool {
	return isType(err, ErrorTypeDependency)
}

func isType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// Error codes
const (
	// Validation error codes
	CodeInvalidInput     = "INVALID_INPUT"
	CodeMissingField     = "MISSING_FIELD"
	CodeOutOfRange       = "OUT_OF_RANGE"
	CodeInvalidTimeRange = "INVALID_TIME_RANGE"
	CodeInvalidMethod    = "INVALID_METHOD"
	CodeLengthMismatch   = "LENGTH_MISMATCH"

	// Computation error codes
	CodeEmptySeries      = "EMPTY_SERIES"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeDegenerateInput  = "DEGENERATE_INPUT"

	// Dependency error codes
	CodeNoData           = "NO_DATA"
	CodeSourceError      = "SOURCE_ERROR"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeCacheError       = "CACHE_ERROR"

	// Internal error codes
	CodeInternalError = "INTERNAL_ERROR"
)
