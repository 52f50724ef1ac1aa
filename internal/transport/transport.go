// Package transport runs outbound HTTP requests off an executor's loop
// goroutine, on a bounded worker pool, and posts completions back onto
// the caller's executor so response handling still only ever touches
// executor-confined session state from the one goroutine allowed to.
package transport

import (
	"net/http"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/csb/phasebench/internal/session"
)

// Pool issues HTTP requests on a bounded set of worker goroutines.
type Pool struct {
	client  *http.Client
	workers *ants.Pool
}

// New creates a Pool with maxWorkers concurrent in-flight requests. A
// nil client gets a default with a 30s timeout. The pool is
// nonblocking: Submit on a saturated pool fails fast with
// ants.ErrPoolOverload rather than blocking, since Submit is normally
// called from HTTPRequest.Invoke on an executor's single loop
// goroutine — blocking there would stall every session that executor
// owns, not just the one issuing the request.
func New(maxWorkers int, client *http.Client) (*Pool, error) {
	workers, err := ants.NewPool(maxWorkers, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Pool{client: client, workers: workers}, nil
}

// Submit runs req on a worker goroutine and schedules onDone back onto
// exec once it completes. onDone is never called on the worker
// goroutine itself. Submit never blocks: if every worker is busy it
// returns ants.ErrPoolOverload immediately, which the caller (normally
// HTTPRequest.Invoke) turns into a step failure rather than stalling
// its executor.
func (p *Pool) Submit(exec session.Scheduler, req *http.Request, onDone func(*http.Response, error)) error {
	return p.workers.Submit(func() {
		resp, err := p.client.Do(req)
		exec.Schedule(0, func() { onDone(resp, err) })
	})
}

// Release shuts the worker pool down. Safe to call once, after every
// executor using this Pool has stopped.
func (p *Pool) Release() { p.workers.Release() }

// Running reports how many requests are currently in flight.
func (p *Pool) Running() int { return p.workers.Running() }
