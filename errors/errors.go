package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified streamkit error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates the owner of the underlying resource may retry.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrStreamState    = &AppError{Code: ErrCodeStreamState}
	ErrPrematureClose = &AppError{Code: ErrCodePrematureClose}
	ErrSourceFailed   = &AppError{Code: ErrCodeSourceFailed}
	ErrSinkFailed     = &AppError{Code: ErrCodeSinkFailed}
	ErrInvalidInput   = &AppError{Code: ErrCodeInvalidInput}
)

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// --- Constructors ---

// StreamState creates an error for an operation that is not allowed in the
// stream's current state.
func StreamState(op, reason string) *AppError {
	return &AppError{
		Code: ErrCodeStreamState, Message: fmt.Sprintf("%s: %s", op, reason),
		Details: map[string]any{"operation": op},
	}
}

// SourceFailed wraps a failure reported by an underlying source.
func SourceFailed(cause error) *AppError {
	if appErr, ok := AsAppError(cause); ok && appErr.Code == ErrCodeSourceFailed {
		return appErr
	}
	return &AppError{
		Code: ErrCodeSourceFailed, Message: "underlying source failed",
		Retryable: true, Cause: cause,
	}
}

// SinkFailed wraps a failure reported by an underlying sink.
func SinkFailed(cause error) *AppError {
	if appErr, ok := AsAppError(cause); ok && appErr.Code == ErrCodeSinkFailed {
		return appErr
	}
	return &AppError{
		Code: ErrCodeSinkFailed, Message: "underlying sink failed",
		Retryable: true, Cause: cause,
	}
}

// PrematureClose creates an error for a stream closed before end or finish.
func PrematureClose() *AppError {
	return &AppError{
		Code: ErrCodePrematureClose, Message: "stream closed before completion",
	}
}

// InvalidInput creates an error for an invalid argument.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("invalid input: %s", reason),
		Details: details,
	}
}

// Validation creates an error for failed option validation.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

// Internal creates an error for a broken invariant.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred", Cause: cause,
	}
}

// --- Helpers ---

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}
