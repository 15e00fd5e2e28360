package posthog

import (
	"time"

	"github.com/teracrafts/posthog-go/config"
)

// Options configures the client.
type Options = config.Options

// OptionFunc is a function that modifies Options.
type OptionFunc = config.OptionFunc

const (
	HostUS               = config.HostUS
	HostEU               = config.HostEU
	DefaultFlushAt       = config.DefaultFlushAt
	DefaultFlushInterval = config.DefaultFlushInterval
	DefaultMaxQueueSize  = config.DefaultMaxQueueSize
	DefaultMaxBatchSize  = config.DefaultMaxBatchSize
	DefaultTimeout       = config.DefaultTimeout
	SDKName              = config.SDKName
	SDKVersion           = config.SDKVersion
)

// DefaultOptions returns Options with default values.
func DefaultOptions(apiKey string) *Options {
	return config.DefaultOptions(apiKey)
}

// WithHost sets the ingestion host.
func WithHost(host string) OptionFunc { return config.WithHost(host) }

// WithDebug enables debug logging.
func WithDebug() OptionFunc { return config.WithDebug() }

// WithLifecycleEvents toggles the "Application Opened" and
// "Application Backgrounded" events.
func WithLifecycleEvents(enabled bool) OptionFunc { return config.WithLifecycleEvents(enabled) }

// WithScreenViews sets CaptureScreenViews.
func WithScreenViews(enabled bool) OptionFunc { return config.WithScreenViews(enabled) }

// WithFeatureFlagEvents toggles $feature_flag_called events.
func WithFeatureFlagEvents(enabled bool) OptionFunc { return config.WithFeatureFlagEvents(enabled) }

// WithPreloadFeatureFlags toggles the flag sync at Initialize.
func WithPreloadFeatureFlags(enabled bool) OptionFunc {
	return config.WithPreloadFeatureFlags(enabled)
}

// WithFlushAt sets the queue length that triggers a flush.
func WithFlushAt(n int) OptionFunc { return config.WithFlushAt(n) }

// WithFlushInterval sets the background flush period.
func WithFlushInterval(d time.Duration) OptionFunc { return config.WithFlushInterval(d) }

// WithMaxQueueSize caps the number of queued events.
func WithMaxQueueSize(n int) OptionFunc { return config.WithMaxQueueSize(n) }

// WithMaxBatchSize caps the number of events per request.
func WithMaxBatchSize(n int) OptionFunc { return config.WithMaxBatchSize(n) }

// WithOptOut starts the client opted out.
func WithOptOut() OptionFunc { return config.WithOptOut() }

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) OptionFunc { return config.WithTimeout(d) }

// WithBootstrapFlags seeds flag values used until the first sync.
func WithBootstrapFlags(flags map[string]any) OptionFunc { return config.WithBootstrapFlags(flags) }

// WithStoragePath enables the flag snapshot and the event journal in dir.
func WithStoragePath(dir string) OptionFunc { return config.WithStoragePath(dir) }

// WithStorageEncryption encrypts the stored flag snapshot.
func WithStorageEncryption() OptionFunc { return config.WithStorageEncryption() }

// WithLogger sets a custom logger.
func WithLogger(logger Logger) OptionFunc { return config.WithLogger(logger) }

// WithErrorSanitization redacts keys, emails and paths from logged errors.
func WithErrorSanitization() OptionFunc { return config.WithErrorSanitization() }
