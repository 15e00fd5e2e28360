package core

import (
	"sync"

	"github.com/teracrafts/posthog-go/types"
)

// Logger is an alias for the types.Logger interface.
type Logger = types.Logger

// EventQueue is the FIFO buffer of records awaiting delivery.
// All operations are atomic with respect to each other.
type EventQueue struct {
	events  []EventRecord
	maxSize int
	logger  Logger
	mu      sync.Mutex
}

// NewEventQueue creates a queue holding at most maxSize captured records.
// A maxSize of zero or less means unbounded.
func NewEventQueue(maxSize int, logger Logger) *EventQueue {
	if logger == nil {
		logger = &types.NullLogger{}
	}
	return &EventQueue{
		maxSize: maxSize,
		logger:  logger,
	}
}

// Enqueue appends a record to the tail and returns the new length. When the
// queue is full the record is dropped and accepted is false.
func (q *EventQueue) Enqueue(r EventRecord) (length int, accepted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxSize > 0 && len(q.events) >= q.maxSize {
		q.logger.Warn("Event queue full, dropping event", "event", r.Name, "max_size", q.maxSize)
		return len(q.events), false
	}

	q.events = append(q.events, r)
	return len(q.events), true
}

// DrainAll removes and returns every queued record in order.
func (q *EventQueue) DrainAll() []EventRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}
	out := q.events
	q.events = nil
	return out
}

// Requeue inserts records at the head, ahead of anything captured since they
// were drained, keeping their relative order. The size cap does not apply.
func (q *EventQueue) Requeue(records []EventRecord) {
	if len(records) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]EventRecord, 0, len(records)+len(q.events))
	merged = append(merged, records...)
	merged = append(merged, q.events...)
	q.events = merged
}

// Len returns the number of queued records.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
