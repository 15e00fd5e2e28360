// Package errors defines the coded error type used inside the SDK.
//
// Internal components return *Error values; the client package converts them
// into safe defaults at its public boundary so that callers never see them.
package errors

import (
	stderrors "errors"
)

// ErrorCode identifies the kind of failure.
type ErrorCode string

const (
	// Lifecycle errors
	ErrNotReady ErrorCode = "NOT_READY"
	ErrClosed   ErrorCode = "CLOSED"
	ErrOptedOut ErrorCode = "OPTED_OUT"

	// Delivery errors
	ErrNetwork     ErrorCode = "NETWORK_ERROR"
	ErrHTTPStatus  ErrorCode = "HTTP_STATUS"
	ErrDecode      ErrorCode = "DECODE_ERROR"
	ErrCircuitOpen ErrorCode = "CIRCUIT_OPEN"

	// Configuration errors
	ErrInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Local errors
	ErrInvalidValue ErrorCode = "INVALID_VALUE"
	ErrStorage      ErrorCode = "STORAGE_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// Error is the SDK error type.
type Error struct {
	Code        ErrorCode
	Message     string
	Cause       error
	StatusCode  int
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "[" + string(e.Code) + "] " + sanitizeMessage(e.Message)
	if e.Cause != nil {
		msg += ": " + sanitizeMessage(e.Cause.Error())
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		Recoverable: isRecoverableCode(code),
	}
}

// NewErrorWithCause creates a new Error wrapping cause.
func NewErrorWithCause(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: isRecoverableCode(code),
	}
}

// StatusError creates an error for a non-2xx HTTP response.
func StatusError(statusCode int, message string) *Error {
	err := NewError(ErrHTTPStatus, message)
	err.StatusCode = statusCode
	err.Recoverable = true
	return err
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrInternal when there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrInternal
}

// IsRecoverable reports whether err is a transient delivery failure that a
// later flush or sync may succeed at.
func IsRecoverable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Recoverable
	}
	return false
}

func isRecoverableCode(code ErrorCode) bool {
	switch code {
	case ErrNetwork, ErrHTTPStatus, ErrCircuitOpen:
		return true
	default:
		return false
	}
}
