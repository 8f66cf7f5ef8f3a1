package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Lifecycle errors
const (
	// ErrCodeStreamState indicates an operation that is invalid in the
	// stream's current lifecycle state (push after end, write after finish).
	ErrCodeStreamState ErrorCode = "STREAM_STATE"
	// ErrCodePrematureClose indicates a stream closed before end or finish.
	ErrCodePrematureClose ErrorCode = "PREMATURE_CLOSE"
)

// Underlying source/sink errors
const (
	// ErrCodeSourceFailed indicates the producer-supplied fetch reported failure.
	ErrCodeSourceFailed ErrorCode = "UNDERLYING_SOURCE"
	// ErrCodeSinkFailed indicates the consumer-supplied flush reported failure.
	ErrCodeSinkFailed ErrorCode = "UNDERLYING_SINK"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates an invalid argument or option.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// Internal errors
const (
	// ErrCodeInternal indicates a broken invariant inside the library.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Source and sink failures are flagged retryable for the adapter that owns
// the resource. Streams themselves never retry.
var retryableCodes = map[ErrorCode]bool{
	ErrCodeSourceFailed: true,
	ErrCodeSinkFailed:   true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
