package worker_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiranshivaraju/booktrans/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsAllTasks(t *testing.T) {
	p := worker.NewPool(3, 10)

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(context.Context) {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(10), n.Load())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_QueueFull(t *testing.T) {
	p := worker.NewPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit(func(context.Context) {}), "one slot in the queue")

	err := p.Submit(func(context.Context) {})
	assert.ErrorIs(t, err, worker.ErrQueueFull)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p := worker.NewPool(1, 0)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), worker.ErrPoolClosed)
	// Idempotent.
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_ShutdownCancelsRunningTasks(t *testing.T) {
	p := worker.NewPool(2, 1)
	started := make(chan struct{})
	var cancelled atomic.Bool

	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	}))
	<-started

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, cancelled.Load())
}

func TestPool_ShutdownTimeout(t *testing.T) {
	p := worker.NewPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) {
		close(started)
		<-release // ignores cancellation
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)
	close(release)
}

func TestPool_SurvivesPanic(t *testing.T) {
	p := worker.NewPool(1, 2)
	done := make(chan struct{})

	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestDetached(t *testing.T) {
	d := worker.NewDetached()
	started := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Submit(func(ctx context.Context) {
			started <- struct{}{}
			<-ctx.Done()
		}))
	}
	// All five run at once, none waits on another.
	for i := 0; i < 5; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("detached task did not start")
		}
	}

	require.NoError(t, d.Shutdown(context.Background()))
	assert.ErrorIs(t, d.Submit(func(context.Context) {}), worker.ErrPoolClosed)
}
