package types

import (
	"io"
	"log/slog"
	"os"
)

// Logger defines the interface for logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DebugSetter is implemented by loggers whose debug output can be toggled
// at runtime.
type DebugSetter interface {
	SetDebug(enabled bool)
}

// DefaultLogger is the default logger implementation. It writes slog text
// records tagged with component=posthog.
type DefaultLogger struct {
	level  *slog.LevelVar
	logger *slog.Logger
}

// NewDefaultLogger creates a logger writing to stdout.
func NewDefaultLogger(debug bool) *DefaultLogger {
	return NewDefaultLoggerTo(os.Stdout, debug)
}

// NewDefaultLoggerTo creates a logger writing to w.
func NewDefaultLoggerTo(w io.Writer, debug bool) *DefaultLogger {
	level := new(slog.LevelVar)
	l := &DefaultLogger{level: level}
	l.SetDebug(debug)
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	l.logger = slog.New(handler).With("component", "posthog")
	return l
}

// SetDebug enables or disables debug output.
func (l *DefaultLogger) SetDebug(enabled bool) {
	if enabled {
		l.level.Set(slog.LevelDebug)
	} else {
		l.level.Set(slog.LevelInfo)
	}
}

// Debug logs a debug message.
func (l *DefaultLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

// Info logs an info message.
func (l *DefaultLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

// Warn logs a warning message.
func (l *DefaultLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warn(msg, keysAndValues...)
}

// Error logs an error message.
func (l *DefaultLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Error(msg, keysAndValues...)
}

// NullLogger is a logger that discards all messages.
type NullLogger struct{}

// Debug does nothing.
func (l *NullLogger) Debug(msg string, keysAndValues ...any) {}

// Info does nothing.
func (l *NullLogger) Info(msg string, keysAndValues ...any) {}

// Warn does nothing.
func (l *NullLogger) Warn(msg string, keysAndValues ...any) {}

// Error does nothing.
func (l *NullLogger) Error(msg string, keysAndValues ...any) {}
