package errors

import (
	"regexp"
	"sync/atomic"
)

// ErrorSanitizationConfig configures redaction of error messages before they
// are logged.
type ErrorSanitizationConfig struct {
	// Enabled enables error message sanitization. Default: false.
	Enabled bool
}

type sanitizationPattern struct {
	pattern     *regexp.Regexp
	replacement string
}

var sanitizationPatterns = []sanitizationPattern{
	// Unix-style file paths (before email to avoid false positives)
	{regexp.MustCompile(`/(?:[\w.-]+/)+[\w.-]+`), "[PATH]"},
	// Windows-style file paths
	{regexp.MustCompile(`[A-Za-z]:\\(?:[^\\]+\\)+[^\\]*`), "[PATH]"},
	// IPv4 addresses
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "[IP]"},
	// Project API keys
	{regexp.MustCompile(`phc_[a-zA-Z0-9_-]{8,}`), "phc_[REDACTED]"},
	// Personal API keys
	{regexp.MustCompile(`phx_[a-zA-Z0-9_-]{8,}`), "phx_[REDACTED]"},
	// Email addresses
	{regexp.MustCompile(`[\w.+-]+@[\w.-]+\.\w+`), "[EMAIL]"},
}

// SanitizeErrorMessage removes sensitive information from message.
// If sanitization is disabled the message is returned unchanged.
func SanitizeErrorMessage(message string, config ErrorSanitizationConfig) string {
	if !config.Enabled {
		return message
	}

	result := message
	for _, sp := range sanitizationPatterns {
		result = sp.pattern.ReplaceAllString(result, sp.replacement)
	}
	return result
}

var sanitizationEnabled atomic.Bool

// SetDefaultSanitizationConfig sets the process-wide sanitization applied by
// (*Error).Error.
func SetDefaultSanitizationConfig(config ErrorSanitizationConfig) {
	sanitizationEnabled.Store(config.Enabled)
}

// GetDefaultSanitizationConfig returns the process-wide sanitization config.
func GetDefaultSanitizationConfig() ErrorSanitizationConfig {
	return ErrorSanitizationConfig{Enabled: sanitizationEnabled.Load()}
}

func sanitizeMessage(message string) string {
	return SanitizeErrorMessage(message, GetDefaultSanitizationConfig())
}
