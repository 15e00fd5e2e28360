// Package config holds the client configuration: functional options,
// defaults, validation and YAML file loading.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/teracrafts/posthog-go/errors"
	"github.com/teracrafts/posthog-go/types"
)

// Logger is an alias for the types.Logger interface.
type Logger = types.Logger

// ErrorSanitizationConfig is an alias for errors.ErrorSanitizationConfig.
type ErrorSanitizationConfig = errors.ErrorSanitizationConfig

const (
	// HostUS is the PostHog US cloud ingestion host.
	HostUS = "https://us.i.posthog.com"

	// HostEU is the PostHog EU cloud ingestion host.
	HostEU = "https://eu.i.posthog.com"

	// DefaultHost is the default ingestion host.
	DefaultHost = HostUS

	// DefaultFlushAt is the queue length that triggers an automatic flush.
	DefaultFlushAt = 20

	// DefaultFlushInterval is the period of the background flush.
	DefaultFlushInterval = 30 * time.Second

	// DefaultMaxQueueSize is the maximum number of queued events.
	DefaultMaxQueueSize = 1000

	// DefaultMaxBatchSize is the maximum number of events per request.
	DefaultMaxBatchSize = 50

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 10 * time.Second

	// SDKName is reported as $lib on every event.
	SDKName = "posthog-go"

	// SDKVersion is the current SDK version, reported as $lib_version.
	SDKVersion = "0.1.0"
)

// Options configures the client. Options are fixed once the client is
// initialized, except for Debug which can be toggled with SetDebug.
type Options struct {
	// APIKey is the project API key (required).
	APIKey string

	// Host is the ingestion host, without a trailing slash.
	Host string

	// Debug enables debug logging.
	Debug bool

	// CaptureApplicationLifecycleEvents emits "Application Opened" on
	// initialize and "Application Backgrounded" on close.
	CaptureApplicationLifecycleEvents bool

	// CaptureScreenViews is accepted for parity with the mobile SDKs. This
	// client has no view hierarchy; Screen must be called explicitly.
	CaptureScreenViews bool

	// SendFeatureFlagEvent emits $feature_flag_called when a flag is read.
	SendFeatureFlagEvent bool

	// PreloadFeatureFlags syncs flags once during initialize.
	PreloadFeatureFlags bool

	// FlushAt is the queue length that triggers an asynchronous flush.
	FlushAt int

	// FlushInterval is the period of the background flush.
	FlushInterval time.Duration

	// MaxQueueSize caps the number of queued events. New captures beyond
	// the cap are dropped; requeued batches are always kept.
	MaxQueueSize int

	// MaxBatchSize caps the number of events sent in one request.
	MaxBatchSize int

	// OptOut starts the client opted out of capturing.
	OptOut bool

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// BootstrapFlags seeds the synced flag table before the first sync.
	BootstrapFlags map[string]any

	// StoragePath enables local persistence of the last synced flags and of
	// events left undelivered at close. Empty disables persistence.
	StoragePath string

	// EncryptStorage encrypts the flag snapshot with a key derived from the
	// API key.
	EncryptStorage bool

	// Logger is a custom logger implementation.
	Logger Logger

	// ErrorSanitization redacts keys, emails and paths from logged errors.
	ErrorSanitization ErrorSanitizationConfig
}

// DefaultOptions returns options with default values.
func DefaultOptions(apiKey string) *Options {
	return &Options{
		APIKey:                            apiKey,
		Host:                              DefaultHost,
		CaptureApplicationLifecycleEvents: true,
		CaptureScreenViews:                false,
		SendFeatureFlagEvent:              true,
		PreloadFeatureFlags:               true,
		FlushAt:                           DefaultFlushAt,
		FlushInterval:                     DefaultFlushInterval,
		MaxQueueSize:                      DefaultMaxQueueSize,
		MaxBatchSize:                      DefaultMaxBatchSize,
		Timeout:                           DefaultTimeout,
	}
}

// Validate validates the options and fills in defaults for unset limits.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.APIKey) == "" {
		return errors.NewError(errors.ErrInvalidConfig, "API key is required")
	}

	if o.Host == "" {
		o.Host = DefaultHost
	}
	u, err := url.Parse(o.Host)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewError(errors.ErrInvalidConfig, "host must be an absolute http(s) URL")
	}
	o.Host = strings.TrimRight(o.Host, "/")

	if o.FlushAt < 1 {
		return errors.NewError(errors.ErrInvalidConfig, "flush-at must be at least 1")
	}

	if o.FlushInterval <= 0 {
		return errors.NewError(errors.ErrInvalidConfig, "flush interval must be positive")
	}

	if o.MaxQueueSize <= 0 {
		o.MaxQueueSize = DefaultMaxQueueSize
	}

	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = DefaultMaxBatchSize
	}

	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	return nil
}

// OptionFunc is a function that modifies Options.
type OptionFunc func(*Options)

// WithHost sets the ingestion host.
func WithHost(host string) OptionFunc {
	return func(o *Options) {
		o.Host = host
	}
}

// WithDebug enables debug logging.
func WithDebug() OptionFunc {
	return func(o *Options) {
		o.Debug = true
	}
}

// WithLifecycleEvents toggles the application lifecycle events.
func WithLifecycleEvents(enabled bool) OptionFunc {
	return func(o *Options) {
		o.CaptureApplicationLifecycleEvents = enabled
	}
}

// WithScreenViews toggles CaptureScreenViews.
func WithScreenViews(enabled bool) OptionFunc {
	return func(o *Options) {
		o.CaptureScreenViews = enabled
	}
}

// WithFeatureFlagEvents toggles $feature_flag_called events.
func WithFeatureFlagEvents(enabled bool) OptionFunc {
	return func(o *Options) {
		o.SendFeatureFlagEvent = enabled
	}
}

// WithPreloadFeatureFlags toggles the flag sync during initialize.
func WithPreloadFeatureFlags(enabled bool) OptionFunc {
	return func(o *Options) {
		o.PreloadFeatureFlags = enabled
	}
}

// WithFlushAt sets the queue length that triggers a flush.
func WithFlushAt(n int) OptionFunc {
	return func(o *Options) {
		o.FlushAt = n
	}
}

// WithFlushInterval sets the background flush period.
func WithFlushInterval(d time.Duration) OptionFunc {
	return func(o *Options) {
		o.FlushInterval = d
	}
}

// WithMaxQueueSize sets the queue cap.
func WithMaxQueueSize(n int) OptionFunc {
	return func(o *Options) {
		o.MaxQueueSize = n
	}
}

// WithMaxBatchSize sets the per-request event cap.
func WithMaxBatchSize(n int) OptionFunc {
	return func(o *Options) {
		o.MaxBatchSize = n
	}
}

// WithOptOut starts the client opted out.
func WithOptOut() OptionFunc {
	return func(o *Options) {
		o.OptOut = true
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) OptionFunc {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithBootstrapFlags seeds flag values used until the first sync.
func WithBootstrapFlags(flags map[string]any) OptionFunc {
	return func(o *Options) {
		o.BootstrapFlags = flags
	}
}

// WithStoragePath enables local persistence under dir.
func WithStoragePath(dir string) OptionFunc {
	return func(o *Options) {
		o.StoragePath = dir
	}
}

// WithStorageEncryption encrypts the persisted flag snapshot.
func WithStorageEncryption() OptionFunc {
	return func(o *Options) {
		o.EncryptStorage = true
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger Logger) OptionFunc {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithErrorSanitization enables redaction of logged error messages.
func WithErrorSanitization() OptionFunc {
	return func(o *Options) {
		o.ErrorSanitization = ErrorSanitizationConfig{Enabled: true}
	}
}
