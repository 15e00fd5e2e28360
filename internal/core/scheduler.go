package core

import (
	"sync"
	"time"
)

// Scheduler calls onTick every interval until stopped. It starts at most
// once and cannot be restarted after Stop.
type Scheduler struct {
	interval time.Duration
	onTick   func()
	logger   Logger
	running  bool
	stopped  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	mu       sync.Mutex
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(interval time.Duration, onTick func(), logger Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		onTick:   onTick,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start starts the tick loop.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Debug("Flush scheduler started", "interval", s.interval)
	}

	go s.run()
}

// Stop stops the loop and waits for it to exit. No tick runs after Stop
// returns. Calls after the first do nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	wasRunning := s.running
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	if wasRunning {
		<-s.doneCh
	}

	if s.logger != nil {
		s.logger.Debug("Flush scheduler stopped")
	}
}

// IsActive reports whether the loop is running.
func (s *Scheduler) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Error("Flush tick panic recovered", "error", r)
		}
	}()
	s.onTick()
}
