package echobus

import (
	"errors"
	"fmt"
)

// Error represents an echobus library error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code, so the sentinels
// ErrNoData and ErrInvalidConfiguration match every error of their category.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Error codes for echobus operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeDatabase indicates database operation failed.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodePublish indicates a record could not be handed to the broker.
	ErrCodePublish = "PUBLISH_ERROR"

	// ErrCodeDecode indicates a delivered record could not be decoded into an envelope.
	ErrCodeDecode = "DECODE_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrInvalidConfiguration matches (errors.Is) every CONFIGURATION_ERROR, e.g. a service
	// built without a required dependency.
	ErrInvalidConfiguration = &Error{
		Code:    ErrCodeConfiguration,
		Message: "invalid configuration",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	var echoErr *Error
	if errors.As(err, &echoErr) {
		return echoErr.Code == ErrCodeNoData
	}
	return errors.Is(err, ErrNoData)
}

// ErrorKind tags a processing failure for the dispatcher.
type ErrorKind int

const (
	// KindUnclassified is any error that carries no kind. It is retried like KindRetryable.
	KindUnclassified ErrorKind = iota

	// KindRetryable marks a transient failure, e.g. a downstream timeout.
	KindRetryable

	// KindNonRetryable marks a permanent failure, e.g. invalid content.
	KindNonRetryable
)

// String returns the kind name used in logs and dead-letter headers.
func (k ErrorKind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindNonRetryable:
		return "non-retryable"
	default:
		return "unclassified"
	}
}

// Retryable reports whether the dispatcher may schedule another attempt for this kind.
func (k ErrorKind) Retryable() bool {
	return k != KindNonRetryable
}

// ProcessingError is returned by handlers to tell the dispatcher how to route a failure.
type ProcessingError struct {
	Kind       ErrorKind
	EnvelopeID string
	Cause      string
	Err        error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	msg := fmt.Sprintf("%s processing error (envelope %s): %s", e.Kind, e.EnvelopeID, e.Cause)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewRetryableError reports a transient failure for the given envelope.
func NewRetryableError(envelopeID, cause string) *ProcessingError {
	return &ProcessingError{Kind: KindRetryable, EnvelopeID: envelopeID, Cause: cause}
}

// NewNonRetryableError reports a permanent failure for the given envelope.
func NewNonRetryableError(envelopeID, cause string) *ProcessingError {
	return &ProcessingError{Kind: KindNonRetryable, EnvelopeID: envelopeID, Cause: cause}
}

// AsRetryable wraps err as a retryable failure.
func AsRetryable(envelopeID string, err error) *ProcessingError {
	return &ProcessingError{Kind: KindRetryable, EnvelopeID: envelopeID, Cause: "transient failure", Err: err}
}

// AsNonRetryable wraps err as a permanent failure.
func AsNonRetryable(envelopeID string, err error) *ProcessingError {
	return &ProcessingError{Kind: KindNonRetryable, EnvelopeID: envelopeID, Cause: "permanent failure", Err: err}
}

// Classify returns the kind of the outermost ProcessingError in err's chain.
// Errors without one are KindUnclassified.
func Classify(err error) ErrorKind {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnclassified
}

// errorType names the concrete type at the bottom of err's chain, for dead-letter headers.
func errorType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
