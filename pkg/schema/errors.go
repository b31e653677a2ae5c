package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeEvaluation = "EVALUATION_ERROR"
	ErrCodeConfig     = "CONFIG_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeComparison = "COMPARISON_ERROR"
	ErrCodeExpression = "EXPRESSION_ERROR"
	ErrCodeStore      = "STORE_ERROR"
)

// GradeError is the structured error type for all propgrade operations.
type GradeError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Path    string         `json:"path,omitempty"`
	Cause   error          `json:"-"`
}

func (e *GradeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s] at %s: %s", e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *GradeError) Unwrap() error {
	return e.Cause
}

// NewError creates a new GradeError.
func NewError(code, message string) *GradeError {
	return &GradeError{Code: code, Message: message}
}

// NewErrorf creates a new GradeError with a formatted message.
func NewErrorf(code, format string, args ...any) *GradeError {
	return &GradeError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithPath attaches the dot-path the error relates to.
func (e *GradeError) WithPath(path string) *GradeError {
	e.Path = path
	return e
}

// WithCause attaches an underlying cause.
func (e *GradeError) WithCause(err error) *GradeError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *GradeError) WithDetails(details map[string]any) *GradeError {
	e.Details = details
	return e
}
