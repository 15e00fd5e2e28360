// Package client is the analytics client: it captures events, keeps the
// identity of the current user and serves feature flags.
//
// Public methods never panic and never return errors. Failures are logged at
// debug level and the documented safe default is returned instead.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/teracrafts/posthog-go/config"
	"github.com/teracrafts/posthog-go/errors"
	"github.com/teracrafts/posthog-go/internal/core"
	"github.com/teracrafts/posthog-go/internal/persistence"
	"github.com/teracrafts/posthog-go/internal/security"
	"github.com/teracrafts/posthog-go/internal/storage"
	"github.com/teracrafts/posthog-go/internal/transport"
	"github.com/teracrafts/posthog-go/types"
)

// Type aliases for convenience
type (
	Options    = config.Options
	OptionFunc = config.OptionFunc
	Logger     = types.Logger
	Task       = core.Task
)

// Lifecycle event names.
const (
	EventApplicationOpened       = "Application Opened"
	EventApplicationBackgrounded = "Application Backgrounded"
)

type lifecycle int

const (
	stateUninitialized lifecycle = iota
	stateActive
	stateClosed
)

// Client is the analytics client. Create it with New, call Initialize once
// and Close when done.
type Client struct {
	options   *Options
	logger    Logger
	session   *core.Session
	queue     *core.EventQueue
	flags     *core.FlagStore
	builder   *core.Builder
	transport *transport.Transport
	flusher   *core.Flusher
	scheduler *core.Scheduler
	store     *storage.FileStore
	journal   *persistence.Journal

	flagCalls   map[string]struct{}
	flagCallsMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	state lifecycle
	mu    sync.RWMutex
}

// New creates a client. The options are validated; nothing is started until
// Initialize.
func New(apiKey string, opts ...OptionFunc) (*Client, error) {
	options := config.DefaultOptions(apiKey)
	for _, opt := range opts {
		opt(options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	errors.SetDefaultSanitizationConfig(options.ErrorSanitization)

	logger := options.Logger
	if logger == nil {
		logger = types.NewDefaultLogger(options.Debug)
	} else if ds, ok := logger.(types.DebugSetter); ok {
		ds.SetDebug(options.Debug)
	}

	security.WarnIfPersonalKey(options.APIKey, logger)

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		options: options,
		logger:  logger,
		session: core.NewSession(options.OptOut),
		queue:   core.NewEventQueue(options.MaxQueueSize, logger),
		flags:   core.NewFlagStore(),
		builder: core.NewBuilder(config.SDKName, config.SDKVersion),
		transport: transport.New(&transport.Config{
			APIKey:    options.APIKey,
			Host:      options.Host,
			UserAgent: config.SDKName + "/" + config.SDKVersion,
			Timeout:   options.Timeout,
			Logger:    logger,
		}),
		flagCalls: make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.flusher = core.NewFlusher(c.queue, c.transport, options.MaxBatchSize, logger)
	c.scheduler = core.NewScheduler(options.FlushInterval, c.onTick, logger)

	logger.Debug("Client created", "host", options.Host)
	return c, nil
}

// Initialize moves the client to the active state: it restores persisted
// state, starts the flush scheduler, emits the "Application Opened" event and
// preloads feature flags as configured. Calls after the first do nothing.
func (c *Client) Initialize() {
	defer c.recoverPanic("Initialize")

	if !c.activate() {
		return
	}

	c.scheduler.Start()

	if c.options.CaptureApplicationLifecycleEvents {
		c.capture(EventApplicationOpened, nil, types.CaptureOptions{})
	}
	if c.options.PreloadFeatureFlags {
		c.reloadFlags(nil)
	}

	c.logger.Info("Client initialized",
		"flush_at", c.options.FlushAt,
		"flush_interval", c.options.FlushInterval,
		"queued", c.queue.Len(),
	)
}

// activate restores persisted state and marks the client active. It reports
// false if the client was already initialized or closed.
func (c *Client) activate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateUninitialized {
		return false
	}
	c.openStorage()
	c.applyBootstrap()
	c.restoreFlags()
	c.recoverJournal()
	c.state = stateActive
	return true
}

// IsSetup reports whether the client is initialized and not closed.
func (c *Client) IsSetup() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateActive
}

// Flush starts delivery of queued events and returns its task. If a flush
// is already running its task is returned.
func (c *Client) Flush() (task *Task) {
	task = core.CompletedTask(nil)
	defer c.recoverPanic("Flush")

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != stateActive {
		return core.CompletedTask(c.stateError())
	}
	return c.flusher.Trigger(c.ctx)
}

// QueueSize returns the number of events waiting for delivery.
func (c *Client) QueueSize() int {
	return c.queue.Len()
}

// SetDebug switches debug logging on or off.
func (c *Client) SetDebug(enabled bool) {
	defer c.recoverPanic("SetDebug")

	c.mu.Lock()
	if c.state != stateActive {
		c.mu.Unlock()
		return
	}
	c.options.Debug = enabled
	c.mu.Unlock()

	if ds, ok := c.logger.(types.DebugSetter); ok {
		ds.SetDebug(enabled)
	}
}

// Close stops the client. It emits "Application Backgrounded", stops the
// scheduler, waits for a running flush, flushes what is left and releases
// network and storage resources. Events that still could not be delivered
// are journaled when a storage path is configured. Close blocks until all of
// this is done; calls after the first do nothing.
func (c *Client) Close() {
	defer c.recoverPanic("Close")

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	wasActive := c.state == stateActive
	c.state = stateClosed
	c.mu.Unlock()

	if wasActive {
		if c.options.CaptureApplicationLifecycleEvents {
			c.enqueue(EventApplicationBackgrounded, nil, types.CaptureOptions{})
		}

		c.scheduler.Stop()
		if err := c.flusher.FlushSync(c.ctx); err != nil {
			c.logger.Debug("Final flush failed", "error", err.Error())
		}
	}

	c.cancel()
	c.flusher.Wait()
	c.wg.Wait()

	c.spillJournal()
	c.release()

	c.logger.Info("Client closed")
}

func (c *Client) onTick() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == stateActive {
		c.flusher.Trigger(c.ctx)
	}
}

func (c *Client) active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateActive
}

func (c *Client) stateError() error {
	if c.state == stateClosed {
		return errors.NewError(errors.ErrClosed, "client is closed")
	}
	return errors.NewError(errors.ErrNotReady, "client is not initialized")
}

func (c *Client) release() {
	if err := c.transport.Close(); err != nil {
		c.logger.Debug("Failed to close transport", "error", err.Error())
	}
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			c.logger.Debug("Failed to close journal", "error", err.Error())
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Debug("Failed to close storage", "error", err.Error())
		}
	}
}

// recoverPanic converts a panic in a public method into a debug log line.
func (c *Client) recoverPanic(op string) {
	if r := recover(); r != nil {
		err := errors.NewError(errors.ErrInternal, fmt.Sprintf("%s panic: %v", op, r))
		c.logger.Debug("Recovered from panic", "op", op, "error", err.Error())
	}
}
