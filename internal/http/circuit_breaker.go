package http

import (
	"sync"
	"time"

	"github.com/teracrafts/posthog-go/types"
)

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // requests flow
	BreakerOpen                         // requests fail fast
	BreakerHalfOpen                     // one probe at a time
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold int

	// OpenTimeout is how long the breaker stays open before letting a probe
	// through.
	OpenTimeout time.Duration

	// ProbeSuccesses is the number of successful probes that close it again.
	ProbeSuccesses int
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		ProbeSuccesses:   1,
	}
}

// CircuitBreaker fails requests fast while the collection endpoint is down.
// A rejected request is not retried here; the caller keeps its data and
// tries again on the next flush or sync.
type CircuitBreaker struct {
	config    BreakerConfig
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	probing   bool
	now       func() time.Time
	logger    types.Logger
	mu        sync.Mutex
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(config *BreakerConfig, logger types.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	cfg := *config
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.ProbeSuccesses <= 0 {
		cfg.ProbeSuccesses = 1
	}
	if logger == nil {
		logger = &types.NullLogger{}
	}
	return &CircuitBreaker{
		config: cfg,
		state:  BreakerClosed,
		now:    time.Now,
		logger: logger,
	}
}

// Allow reports whether a request may be sent now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.config.OpenTimeout {
			return false
		}
		cb.transitionTo(BreakerHalfOpen)
	}

	if cb.probing {
		return false
	}
	cb.probing = true
	return true
}

// RecordSuccess records a request that reached the server.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failures = 0
	case BreakerHalfOpen:
		cb.probing = false
		cb.successes++
		if cb.successes >= cb.config.ProbeSuccesses {
			cb.transitionTo(BreakerClosed)
		}
	}
}

// RecordFailure records a request that failed at the network level or with a
// server-side status.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transitionTo(BreakerOpen)
		}
	case BreakerHalfOpen:
		cb.probing = false
		cb.transitionTo(BreakerOpen)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(BreakerClosed)
	cb.probing = false
}

func (cb *CircuitBreaker) transitionTo(next BreakerState) {
	prev := cb.state
	cb.state = next
	cb.failures = 0
	cb.successes = 0
	if next == BreakerOpen {
		cb.openedAt = cb.now()
	}
	if prev != next {
		cb.logger.Debug("Circuit breaker state change", "from", prev.String(), "to", next.String())
	}
}
