package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML representation of Options. Unset fields keep their
// defaults.
type FileConfig struct {
	APIKey              string         `yaml:"api_key"`
	Host                string         `yaml:"host"`
	Debug               *bool          `yaml:"debug"`
	LifecycleEvents     *bool          `yaml:"capture_lifecycle_events"`
	ScreenViews         *bool          `yaml:"capture_screen_views"`
	FeatureFlagEvents   *bool          `yaml:"send_feature_flag_event"`
	PreloadFeatureFlags *bool          `yaml:"preload_feature_flags"`
	FlushAt             int            `yaml:"flush_at"`
	FlushInterval       string         `yaml:"flush_interval"`
	MaxQueueSize        int            `yaml:"max_queue_size"`
	MaxBatchSize        int            `yaml:"max_batch_size"`
	OptOut              *bool          `yaml:"opt_out"`
	Timeout             string         `yaml:"timeout"`
	StoragePath         string         `yaml:"storage_path"`
	EncryptStorage      *bool          `yaml:"encrypt_storage"`
	SanitizeErrors      *bool          `yaml:"sanitize_errors"`
	BootstrapFlags      map[string]any `yaml:"bootstrap_flags"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration. Unknown keys are rejected.
func Parse(data []byte) (*FileConfig, error) {
	var cfg FileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return nil, err
	}
	if _, err := cfg.durations(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Options converts the file into option functions, in a form that can be
// passed to client.New after any programmatic options.
func (c *FileConfig) Options() []OptionFunc {
	var opts []OptionFunc

	if c.Host != "" {
		opts = append(opts, WithHost(c.Host))
	}
	if c.Debug != nil {
		debug := *c.Debug
		opts = append(opts, func(o *Options) { o.Debug = debug })
	}
	if c.LifecycleEvents != nil {
		opts = append(opts, WithLifecycleEvents(*c.LifecycleEvents))
	}
	if c.ScreenViews != nil {
		opts = append(opts, WithScreenViews(*c.ScreenViews))
	}
	if c.FeatureFlagEvents != nil {
		opts = append(opts, WithFeatureFlagEvents(*c.FeatureFlagEvents))
	}
	if c.PreloadFeatureFlags != nil {
		opts = append(opts, WithPreloadFeatureFlags(*c.PreloadFeatureFlags))
	}
	if c.FlushAt > 0 {
		opts = append(opts, WithFlushAt(c.FlushAt))
	}
	if c.MaxQueueSize > 0 {
		opts = append(opts, WithMaxQueueSize(c.MaxQueueSize))
	}
	if c.MaxBatchSize > 0 {
		opts = append(opts, WithMaxBatchSize(c.MaxBatchSize))
	}
	if c.OptOut != nil {
		optOut := *c.OptOut
		opts = append(opts, func(o *Options) { o.OptOut = optOut })
	}
	if c.StoragePath != "" {
		opts = append(opts, WithStoragePath(c.StoragePath))
	}
	if c.EncryptStorage != nil {
		encrypt := *c.EncryptStorage
		opts = append(opts, func(o *Options) { o.EncryptStorage = encrypt })
	}
	if c.SanitizeErrors != nil {
		sanitize := *c.SanitizeErrors
		opts = append(opts, func(o *Options) { o.ErrorSanitization.Enabled = sanitize })
	}
	if len(c.BootstrapFlags) > 0 {
		opts = append(opts, WithBootstrapFlags(c.BootstrapFlags))
	}

	d, _ := c.durations()
	if d.flushInterval > 0 {
		opts = append(opts, WithFlushInterval(d.flushInterval))
	}
	if d.timeout > 0 {
		opts = append(opts, WithTimeout(d.timeout))
	}

	return opts
}

type fileDurations struct {
	flushInterval time.Duration
	timeout       time.Duration
}

func (c *FileConfig) durations() (fileDurations, error) {
	var d fileDurations
	var err error
	if c.FlushInterval != "" {
		if d.flushInterval, err = time.ParseDuration(c.FlushInterval); err != nil {
			return d, fmt.Errorf("flush_interval: %w", err)
		}
	}
	if c.Timeout != "" {
		if d.timeout, err = time.ParseDuration(c.Timeout); err != nil {
			return d, fmt.Errorf("timeout: %w", err)
		}
	}
	return d, nil
}
