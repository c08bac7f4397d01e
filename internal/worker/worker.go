// Package worker runs accepted jobs off the request path, either on a
// bounded pool or on one goroutine per job.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var (
	ErrQueueFull  = errors.New("worker queue full")
	ErrPoolClosed = errors.New("worker pool closed")
)

// Task is one unit of background work. ctx is cancelled on Shutdown.
type Task func(ctx context.Context)

// Dispatcher accepts tasks and runs them asynchronously.
type Dispatcher interface {
	// Submit never blocks on the task itself.
	Submit(t Task) error
	// Shutdown stops accepting work, cancels running tasks and waits for
	// them to return or for ctx to expire.
	Shutdown(ctx context.Context) error
}

// Pool runs tasks on a fixed number of goroutines fed by a bounded queue.
type Pool struct {
	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines. queueSize tasks may wait beyond the
// ones being executed.
func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan Task, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.loop(i)
	}
	return p
}

func (p *Pool) loop(id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		run(p.ctx, t, "worker_id", id)
	}
}

// Submit enqueues t, or fails with ErrQueueFull when every worker is busy
// and the queue is at capacity.
func (p *Pool) Submit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown closes the queue and cancels the task context. Tasks still in
// the queue are handed the cancelled context so they can record why they
// never ran.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	p.cancel()
	return wait(ctx, &p.wg)
}

// Detached starts a goroutine per task. Submit never fails until Shutdown.
type Detached struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewDetached() *Detached {
	ctx, cancel := context.WithCancel(context.Background())
	return &Detached{ctx: ctx, cancel: cancel}
}

func (d *Detached) Submit(t Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrPoolClosed
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		run(d.ctx, t)
	}()
	return nil
}

func (d *Detached) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	return wait(ctx, &d.wg)
}

// run executes t and keeps a panicking task from taking its goroutine down.
func run(ctx context.Context, t Task, logArgs ...any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in background task", append([]any{"error", r}, logArgs...)...)
		}
	}()
	t(ctx)
}

func wait(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ Dispatcher = (*Pool)(nil)
	_ Dispatcher = (*Detached)(nil)
)
