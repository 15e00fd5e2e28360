package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/teracrafts/posthog-go/errors"
	"github.com/teracrafts/posthog-go/types"
)

// Deliverer sends one batch of records. A batch is delivered entirely or not
// at all.
type Deliverer interface {
	DeliverBatch(ctx context.Context, batch []EventRecord) error
}

// Flusher moves records from the queue to a Deliverer. At most one flush
// runs at a time. Records of a failed chunk, and every chunk after it, go
// back to the head of the queue in their original order.
type Flusher struct {
	queue     *EventQueue
	deliverer Deliverer
	batchSize int
	logger    Logger
	inflight  *Task
	wg        sync.WaitGroup
	mu        sync.Mutex
}

// NewFlusher creates a flusher that sends chunks of at most batchSize
// records. A batchSize of zero or less sends the whole drained set at once.
func NewFlusher(queue *EventQueue, deliverer Deliverer, batchSize int, logger Logger) *Flusher {
	if logger == nil {
		logger = &types.NullLogger{}
	}
	return &Flusher{
		queue:     queue,
		deliverer: deliverer,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Trigger starts a flush in the background and returns its task. If a flush
// is already running its task is returned and nothing new starts. An empty
// queue yields a completed task.
func (f *Flusher) Trigger(ctx context.Context) *Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.inflight != nil {
		return f.inflight
	}
	if f.queue.Len() == 0 {
		return CompletedTask(nil)
	}

	t := newTask()
	f.inflight = t
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.finish(t, f.run(ctx))
	}()
	return t
}

// FlushSync waits for any running flush, then flushes in the calling
// goroutine.
func (f *Flusher) FlushSync(ctx context.Context) error {
	for {
		f.mu.Lock()
		if running := f.inflight; running != nil {
			f.mu.Unlock()
			_ = running.Wait()
			continue
		}
		t := newTask()
		f.inflight = t
		f.mu.Unlock()

		err := f.run(ctx)
		f.finish(t, err)
		return err
	}
}

// Inflight returns the running flush task, or nil.
func (f *Flusher) Inflight() *Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inflight
}

// Wait blocks until every background flush has returned.
func (f *Flusher) Wait() {
	f.wg.Wait()
}

func (f *Flusher) finish(t *Task, err error) {
	f.mu.Lock()
	if f.inflight == t {
		f.inflight = nil
	}
	f.mu.Unlock()
	t.complete(err)
}

func (f *Flusher) run(ctx context.Context) error {
	records := f.queue.DrainAll()
	if len(records) == 0 {
		return nil
	}

	size := f.batchSize
	if size <= 0 {
		size = len(records)
	}

	f.logger.Debug("Flushing events", "count", len(records))

	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		if err := f.deliver(ctx, records[start:end]); err != nil {
			f.queue.Requeue(records[start:])
			f.logger.Warn("Failed to deliver events, requeued",
				"error", err.Error(),
				"requeued", len(records)-start,
			)
			return err
		}
		f.logger.Debug("Delivered events", "count", end-start)
	}
	return nil
}

func (f *Flusher) deliver(ctx context.Context, batch []EventRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewError(errors.ErrInternal, fmt.Sprintf("deliver panic: %v", r))
		}
	}()
	return f.deliverer.DeliverBatch(ctx, batch)
}
