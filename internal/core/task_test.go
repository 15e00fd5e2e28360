package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	pherrors "github.com/teracrafts/posthog-go/errors"
)

func TestCompletedTask(t *testing.T) {
	boom := errors.New("boom")
	task := CompletedTask(boom)

	assert.True(t, task.Finished())
	assert.Equal(t, boom, task.Wait())
	assert.Equal(t, boom, task.Err())
}

func TestTaskCompletesOnce(t *testing.T) {
	task := newTask()
	assert.False(t, task.Finished())
	assert.Nil(t, task.Err())

	task.complete(nil)
	task.complete(errors.New("ignored"))
	assert.NoError(t, task.Wait())
}

func TestTaskWaitContext(t *testing.T) {
	task := newTask()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, task.WaitContext(ctx), context.DeadlineExceeded)
}

func TestGoRecoversPanic(t *testing.T) {
	var wg sync.WaitGroup
	task := Go(&wg, func() error { panic("bad") })
	wg.Wait()

	err := task.Wait()
	assert.Error(t, err)
	assert.Equal(t, pherrors.ErrInternal, pherrors.CodeOf(err))
}
