// Package executor implements a single-threaded cooperative event loop:
// one goroutine drains a task queue in order, so all sessions bound to
// one executor run serially with no internal locking.
// Delayed work (timers, HTTP-completion callbacks) is always posted back
// onto the owning executor rather than run where it fires — callers
// outside the loop goroutine never touch executor-confined state
// directly.
package executor

import (
	"context"
	"sync"
	"time"
)

// Executor is a single-consumer, multi-producer task queue plus a timer
// service. Post is safe to call from any goroutine; Run must be called
// from exactly one goroutine, and that goroutine is the only one ever
// allowed to touch executor-confined state (session pools, ThreadData,
// phase arrival loops).
type Executor struct {
	tasks   chan func()
	closing chan struct{}
	once    sync.Once
}

// New creates an Executor with the given task-queue depth. Depth should
// be sized to the expected burst of concurrent posts (arrivals plus
// transport completions); a full queue blocks the poster until Run
// drains it or the executor is stopped.
func New(queueDepth int) *Executor {
	if queueDepth <= 0 {
		queueDepth = 1024
	}
	return &Executor{
		tasks:   make(chan func(), queueDepth),
		closing: make(chan struct{}),
	}
}

// Post enqueues fn to run on the executor's loop goroutine. Safe to call
// from any goroutine, including transport callbacks firing on a
// connection-pool worker.
func (e *Executor) Post(fn func()) {
	select {
	case e.tasks <- fn:
	case <-e.closing:
	}
}

// Schedule posts fn to run after d has elapsed, still on the loop
// goroutine. d <= 0 posts immediately.
func (e *Executor) Schedule(d time.Duration, fn func()) {
	if d <= 0 {
		e.Post(fn)
		return
	}
	time.AfterFunc(d, func() { e.Post(fn) })
}

// Run drains the task queue until ctx is done or Stop is called. It
// must run on a single dedicated goroutine for the lifetime of the
// executor.
func (e *Executor) Run(ctx context.Context) {
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-ctx.Done():
			return
		case <-e.closing:
			return
		}
	}
}

// Stop terminates Run. Idempotent.
func (e *Executor) Stop() {
	e.once.Do(func() { close(e.closing) })
}
