package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrPoolClosed is returned for jobs submitted to, or still queued in, a closed pool
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrDeadline is returned when a job does not finish before its context is done
	ErrDeadline = errors.New("job deadline exceeded")
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// JobFunc adapts a function to the Job interface
type JobFunc func(ctx context.Context) Result

// Execute calls f(ctx)
func (f JobFunc) Execute(ctx context.Context) Result {
	return f(ctx)
}

// ErrorResult is a Result carrying only an error
type ErrorResult struct {
	Err error
}

// GetError returns the wrapped error
func (r ErrorResult) GetError() error {
	return r.Err
}

// Pending is the handle of a submitted job. A job whose handle timed out is
// abandoned: it may keep running, but its result is never read.
type Pending struct {
	ctx    context.Context
	done   chan struct{}
	result Result
	err    error
}

func newPending(ctx context.Context) *Pending {
	return &Pending{ctx: ctx, done: make(chan struct{})}
}

func (p *Pending) fail(err error) {
	p.err = err
	close(p.done)
}

// Await blocks until the job finishes or the job's context is done.
// The returned error describes scheduling failures only; job failures are
// reported through Result.GetError.
func (p *Pending) Await() (Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	default:
	}

	select {
	case <-p.done:
		return p.result, p.err
	case <-p.ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrDeadline, p.ctx.Err())
	}
}

// Done is closed when the job has finished or was rejected
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

type task struct {
	ctx     context.Context
	job     Job
	pending *Pending
}

// Pool manages a fixed set of long-lived workers shared by all callers.
// A worker is held by a job until the job returns or its context is done,
// whichever comes first; a job that overruns its deadline keeps running on
// its own goroutine without holding a worker.
type Pool struct {
	workers    int
	jobQueue   chan *task
	wg         sync.WaitGroup
	jobs       sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	startOnce  sync.Once
	closeOnce  sync.Once
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan *task, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Workers returns the pool size
func (p *Pool) Workers() int {
	return p.workers
}

// Start starts the worker goroutines. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case t := <-p.jobQueue:
			p.run(t)
		}
	}
}

func (p *Pool) run(t *task) {
	// Expired while queued: nobody is waiting for it any more
	if err := t.ctx.Err(); err != nil {
		t.pending.fail(fmt.Errorf("%w: %v", ErrDeadline, err))
		return
	}

	ctx, cancel := context.WithCancel(t.ctx)
	stop := context.AfterFunc(p.ctx, cancel)

	p.jobs.Add(1)
	go func() {
		defer p.jobs.Done()
		defer stop()
		defer cancel()
		execute(ctx, t.job, t.pending)
	}()

	select {
	case <-t.pending.Done():
	case <-ctx.Done():
	}
}

// execute runs job, converting a panic into an error result, then releases the handle
func execute(ctx context.Context, job Job, pending *Pending) {
	defer close(pending.done)
	defer func() {
		if r := recover(); r != nil {
			pending.result = ErrorResult{Err: fmt.Errorf("job panicked: %v", r)}
		}
	}()

	pending.result = job.Execute(ctx)
	if pending.result == nil {
		pending.result = ErrorResult{}
	}
}

// Submit queues job for execution. ctx bounds both the queue wait and the
// execution; when it is done the returned handle resolves with ErrDeadline.
func (p *Pool) Submit(ctx context.Context, job Job) *Pending {
	pending := newPending(ctx)
	t := &task{ctx: ctx, job: job, pending: pending}

	if p.ctx.Err() != nil {
		pending.fail(ErrPoolClosed)
		return pending
	}

	select {
	case <-p.ctx.Done():
		pending.fail(ErrPoolClosed)
	case <-ctx.Done():
		pending.fail(fmt.Errorf("%w: %v", ErrDeadline, ctx.Err()))
	case p.jobQueue <- t:
	}

	return pending
}

// Close stops the workers and waits for running jobs, including abandoned
// ones, to return. Jobs still queued resolve with ErrPoolClosed.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.cancelFunc()
		p.wg.Wait()

		for drained := false; !drained; {
			select {
			case t := <-p.jobQueue:
				t.pending.fail(ErrPoolClosed)
			default:
				drained = true
			}
		}

		p.jobs.Wait()
	})
}

// Go runs a single job on its own goroutine, outside any pool
func Go(ctx context.Context, job Job) *Pending {
	pending := newPending(ctx)
	go execute(ctx, job, pending)
	return pending
}
