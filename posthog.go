// Package posthog provides a Go client for capturing analytics events and
// reading feature flags from PostHog.
//
// Quick Start:
//
//	client, err := posthog.New("phc_your_project_key")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client.Initialize()
//	defer client.Close()
//
//	// Track events
//	client.Capture("button_clicked", map[string]any{"button": "signup"})
//
//	// Identify user
//	client.Identify("user-123", map[string]any{"plan": "premium"}, nil)
//
//	// Evaluate flags
//	if client.IsFeatureEnabled("new-checkout", false) {
//	    // ...
//	}
package posthog

import (
	"github.com/teracrafts/posthog-go/client"
	"github.com/teracrafts/posthog-go/types"
)

// Client is the analytics client.
type Client = client.Client

// Task is the handle returned by Flush and ReloadFeatureFlags.
type Task = client.Task

// Analytics is the set of operations applications use to record events and
// read feature flags. *Client implements it; tests can substitute a fake.
type Analytics interface {
	Initialize()
	IsSetup() bool
	Close()
	Flush() *Task
	QueueSize() int
	SetDebug(enabled bool)

	Capture(event string, properties map[string]any)
	CaptureWithOptions(event string, properties map[string]any, opts CaptureOptions)
	Screen(screenName string, properties map[string]any)
	CaptureException(err error, level ExceptionLevel, properties map[string]any)
	SetPersonProperties(properties map[string]any)
	SetPersonPropertiesOnce(properties map[string]any)

	Identify(distinctID string, set, setOnce map[string]any)
	Alias(alias string)
	Group(groupType, groupKey string, properties map[string]any)
	Reset()
	DistinctID() string
	AnonymousID() string
	SessionID() string

	Register(key string, val any)
	RegisterAll(properties map[string]any)
	Unregister(key string)

	OptOut()
	OptIn()
	IsOptedOut() bool

	IsFeatureEnabled(key string, def bool) bool
	GetFeatureFlag(key string) any
	GetFeatureFlagPayload(key string) any
	GetFeatureFlagResult(key string) *types.FlagResult
	GetAllFeatureFlags() map[string]any
	ReloadFeatureFlags(callback func(error)) *Task
	OverrideFeatureFlags(overrides map[string]any)
}

var _ Analytics = (*Client)(nil)

// New creates a client for the project identified by apiKey. The client
// does nothing until Initialize is called.
func New(apiKey string, opts ...OptionFunc) (*Client, error) {
	return client.New(apiKey, opts...)
}
