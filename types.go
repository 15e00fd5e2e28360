package posthog

import (
	"github.com/teracrafts/posthog-go/errors"
	"github.com/teracrafts/posthog-go/types"
)

// Logger defines the interface for logging.
type Logger = types.Logger

// DefaultLogger is the default logger implementation.
type DefaultLogger = types.DefaultLogger

// NullLogger is a logger that discards all messages.
type NullLogger = types.NullLogger

// NewDefaultLogger creates a new default logger.
func NewDefaultLogger(debug bool) *DefaultLogger {
	return types.NewDefaultLogger(debug)
}

// CaptureOptions adjusts a single capture call.
type CaptureOptions = types.CaptureOptions

// ExceptionLevel is the severity attached to captured exceptions.
type ExceptionLevel = types.ExceptionLevel

const (
	LevelDebug   = types.LevelDebug
	LevelInfo    = types.LevelInfo
	LevelWarning = types.LevelWarning
	LevelError   = types.LevelError
	LevelFatal   = types.LevelFatal
)

// FlagResult is the detailed result of a flag lookup.
type FlagResult = types.FlagResult

// Error is the SDK error type.
type Error = errors.Error

// ErrorCode identifies the kind of failure.
type ErrorCode = errors.ErrorCode

// Error codes
const (
	ErrNotReady      = errors.ErrNotReady
	ErrClosed        = errors.ErrClosed
	ErrNetwork       = errors.ErrNetwork
	ErrHTTPStatus    = errors.ErrHTTPStatus
	ErrDecode        = errors.ErrDecode
	ErrCircuitOpen   = errors.ErrCircuitOpen
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrStorage       = errors.ErrStorage
	ErrInternal      = errors.ErrInternal
)

// IsRecoverable reports whether err is a transient delivery failure.
func IsRecoverable(err error) bool {
	return errors.IsRecoverable(err)
}
