package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/teracrafts/posthog-go/errors"
)

// Task is the handle of a background operation such as a flush or a flag
// reload. It completes exactly once.
type Task struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// CompletedTask returns a task that has already finished with err.
func CompletedTask(err error) *Task {
	t := newTask()
	t.complete(err)
	return t
}

func (t *Task) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// WaitContext is like Wait but gives up when ctx is done.
func (t *Task) WaitContext(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task's error, or nil if it has not finished.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Finished reports whether the task has completed.
func (t *Task) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Go runs fn in a new goroutine tracked by wg and returns its task. A panic
// in fn completes the task with an INTERNAL_ERROR.
func Go(wg *sync.WaitGroup, fn func() error) *Task {
	t := newTask()
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				t.complete(errors.NewError(errors.ErrInternal, fmt.Sprintf("task panic: %v", r)))
			}
		}()
		t.complete(fn())
	}()
	return t
}
