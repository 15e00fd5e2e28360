// Package types holds the public types shared by the client, its internals
// and callers: the Logger interface and feature flag results.
package types

import (
	"time"

	"github.com/teracrafts/posthog-go/value"
)

// FlagKind classifies a feature flag value.
type FlagKind string

const (
	FlagDisabled FlagKind = "disabled"
	FlagEnabled  FlagKind = "enabled"
	FlagVariant  FlagKind = "variant"
	FlagPayload  FlagKind = "payload"
)

// ClassifyFlag returns the kind of a flag value. Null and false are
// disabled, true is enabled, strings are variants, anything else is a JSON
// payload.
func ClassifyFlag(v value.Value) FlagKind {
	switch t := v.(type) {
	case nil, value.Null:
		return FlagDisabled
	case value.Bool:
		if t {
			return FlagEnabled
		}
		return FlagDisabled
	case value.String:
		return FlagVariant
	default:
		return FlagPayload
	}
}

// EvaluationReason explains where a flag result came from.
type EvaluationReason string

const (
	ReasonOverride     EvaluationReason = "OVERRIDE"
	ReasonSynced       EvaluationReason = "SYNCED"
	ReasonFlagNotFound EvaluationReason = "FLAG_NOT_FOUND"
	ReasonNotReady     EvaluationReason = "NOT_READY"
	ReasonError        EvaluationReason = "ERROR"
)

// FlagResult is the detailed result of a flag lookup.
type FlagResult struct {
	Key       string           `json:"key"`
	Value     any              `json:"value"`
	Payload   any              `json:"payload,omitempty"`
	Enabled   bool             `json:"enabled"`
	Kind      FlagKind         `json:"kind"`
	Reason    EvaluationReason `json:"reason"`
	Timestamp time.Time        `json:"timestamp"`
}

// BoolValue returns the value as a boolean.
func (r *FlagResult) BoolValue() bool {
	if v, ok := r.Value.(bool); ok {
		return v
	}
	return false
}

// StringValue returns the value as a string.
func (r *FlagResult) StringValue() string {
	if v, ok := r.Value.(string); ok {
		return v
	}
	return ""
}

// ExceptionLevel is the severity attached to captured exceptions.
type ExceptionLevel string

const (
	LevelDebug   ExceptionLevel = "debug"
	LevelInfo    ExceptionLevel = "info"
	LevelWarning ExceptionLevel = "warning"
	LevelError   ExceptionLevel = "error"
	LevelFatal   ExceptionLevel = "fatal"
)

// CaptureOptions adjusts a single capture call.
type CaptureOptions struct {
	// Groups are merged over the current group memberships for this event only.
	Groups map[string]string

	// Timestamp overrides the capture time when non-zero.
	Timestamp time.Time
}
