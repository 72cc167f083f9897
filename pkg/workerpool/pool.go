// Package workerpool defines the execution capability the workflow
// manager dispatches task bodies through, plus a goroutine-backed pool.
//
// The contract is deliberately small: submit a callable and get a
// handle; poll the handle without blocking; interrupt it; shut the pool
// down. Any pool satisfying it -- thread-backed, process-backed, or
// cluster-backed -- is admissible; the manager never blocks on a single
// worker and never executes task bodies itself.
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Work is a task body as the pool sees it: an opaque computation bounded
// by the given context.
type Work func(ctx context.Context) (interface{}, error)

// Handle tracks one in-flight submission.
type Handle interface {
	// ID identifies the submission, for logs and diagnostics.
	ID() string

	// Poll reports without blocking. done is false while the work is
	// still in flight; once done, value and err carry the outcome.
	Poll() (done bool, value interface{}, err error)

	// Interrupt cancels the work's context. The work is expected to
	// observe cancellation and return; Poll will then report it done.
	// Idempotent.
	Interrupt()
}

// Pool accepts work for asynchronous execution.
type Pool interface {
	// Submit enqueues work. The returned handle is live immediately;
	// the work starts when a worker slot frees up.
	Submit(ctx context.Context, work Work) Handle

	// Shutdown interrupts all in-flight work and stops accepting more.
	Shutdown()
}

// Goroutine is a Pool running each submission on its own goroutine,
// with a semaphore bounding how many execute at once. Panics in work
// functions are recovered and surfaced as errors on the handle.
type Goroutine struct {
	sem      chan struct{}
	mu       sync.Mutex
	shutdown bool
	inflight map[*goroutineHandle]struct{}
}

// NewGoroutine returns a pool running at most size submissions at once.
// A size of zero or less means no bound beyond the scheduler's own
// resource budget.
func NewGoroutine(size int) *Goroutine {
	p := &Goroutine{
		inflight: make(map[*goroutineHandle]struct{}),
	}
	if size > 0 {
		p.sem = make(chan struct{}, size)
	}
	return p
}

type goroutineHandle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.Mutex
	value interface{}
	err   error
}

func (h *goroutineHandle) ID() string { return h.id }

func (h *goroutineHandle) Poll() (bool, interface{}, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return true, h.value, h.err
	default:
		return false, nil, nil
	}
}

func (h *goroutineHandle) Interrupt() {
	h.cancel()
}

// Submit enqueues work on a new goroutine.
// Submitting to a shut-down pool returns a handle that reports done with
// an error immediately.
func (p *Goroutine) Submit(ctx context.Context, work Work) Handle {
	workCtx, cancel := context.WithCancel(ctx)
	h := &goroutineHandle{
		id:     uuid.New().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		h.err = fmt.Errorf("worker pool is shut down")
		cancel()
		close(h.done)
		return h
	}
	p.inflight[h] = struct{}{}
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.mu.Lock()
				h.err = fmt.Errorf("worker panic: %v", r)
				h.mu.Unlock()
			}
			p.mu.Lock()
			delete(p.inflight, h)
			p.mu.Unlock()
			cancel()
			close(h.done)
		}()
		if p.sem != nil {
			select {
			case p.sem <- struct{}{}:
				defer func() { <-p.sem }()
			case <-workCtx.Done():
				h.mu.Lock()
				h.err = workCtx.Err()
				h.mu.Unlock()
				return
			}
		}
		value, err := work(workCtx)
		h.mu.Lock()
		h.value, h.err = value, err
		h.mu.Unlock()
	}()
	return h
}

// Shutdown interrupts everything in flight and rejects new submissions.
func (p *Goroutine) Shutdown() {
	p.mu.Lock()
	p.shutdown = true
	handles := make([]*goroutineHandle, 0, len(p.inflight))
	for h := range p.inflight {
		handles = append(handles, h)
	}
	p.mu.Unlock()
	for _, h := range handles {
		h.Interrupt()
	}
}
