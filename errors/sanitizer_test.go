package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeErrorMessageDisabled(t *testing.T) {
	message := "failed to write /var/lib/app/flags.json for phc_abcdefghijkl"
	assert.Equal(t, message, SanitizeErrorMessage(message, ErrorSanitizationConfig{}))
}

func TestSanitizeErrorMessage(t *testing.T) {
	config := ErrorSanitizationConfig{Enabled: true}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"unix path", "failed to read /home/user/flags.json", "failed to read [PATH]"},
		{"windows path", `failed to open C:\Users\app\events.db`, "failed to open [PATH]"},
		{"ip address", "dial tcp 10.0.0.12:443: refused", "dial tcp [IP]:443: refused"},
		{"project key", "rejected key phc_1234567890abcdef", "rejected key phc_[REDACTED]"},
		{"personal key", "rejected key phx_1234567890abcdef", "rejected key phx_[REDACTED]"},
		{"email", "unknown user jane.doe@example.com", "unknown user [EMAIL]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeErrorMessage(tt.input, config))
		})
	}
}

func TestErrorUsesDefaultSanitization(t *testing.T) {
	SetDefaultSanitizationConfig(ErrorSanitizationConfig{Enabled: true})
	defer SetDefaultSanitizationConfig(ErrorSanitizationConfig{})

	err := NewErrorWithCause(ErrNetwork, "batch rejected for phc_1234567890abcdef", stderrors.New("from 10.1.2.3"))
	assert.Equal(t, "[NETWORK_ERROR] batch rejected for phc_[REDACTED]: from [IP]", err.Error())
	assert.True(t, GetDefaultSanitizationConfig().Enabled)
}
