package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies failures crossing the core's boundaries
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeCaptcha    ErrorType = "captcha"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Error carries the failure class plus enough context (operation, identifiers)
// for the caller to log and display it
type Error struct {
	Type    ErrorType
	Op      string
	Message string
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s error: %s", e.Op, e.Type, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// New creates a typed error
func New(t ErrorType, op, message string) *Error {
	return &Error{Type: t, Op: op, Message: message}
}

// Newf creates a typed error with a formatted message
func Newf(t ErrorType, op, format string, args ...interface{}) *Error {
	return &Error{Type: t, Op: op, Message: fmt.Sprintf(format, args...)}
}

// TypeOf extracts the ErrorType from an error chain, ErrorTypeUnknown if none
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether the error chain contains a typed error of type t
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

// IsRetryable checks if an error type should be retried. Captcha requires
// human intervention and validation failures won't change on retry; storage
// failures are safe to retry as a whole operation, not per-call.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500
	}
}
