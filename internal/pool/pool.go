// Package pool implements the per-executor bounded session pool.
// Capacity is reserved up front and sessions are pre-allocated eagerly,
// so acquiring one during the run never allocates. Because a Pool is
// confined to a single executor goroutine, it needs no locking.
package pool

import (
	"github.com/csb/phasebench/internal/session"
)

// Pool is a bounded, reusable pool of pre-constructed sessions.
type Pool struct {
	thread *session.ThreadData
	schema *session.VarSchema
	free   []*session.Session
	all    []*session.Session
}

// New creates an empty pool bound to thread, sizing variable tables
// according to schema.
func New(thread *session.ThreadData, schema *session.VarSchema) *Pool {
	return &Pool{thread: thread, schema: schema}
}

// Reserve extends capacity by n, eagerly allocating n sessions. Called
// during the benchmark-build reserve pass, summing `users` (closed
// models) or `maxSessionsEstimate` (open models) across every phase
// co-located on the executor.
func (p *Pool) Reserve(n int) {
	for i := 0; i < n; i++ {
		s := session.New(p.thread, p.schema)
		p.all = append(p.all, s)
		p.free = append(p.free, s)
	}
}

// Capacity reports the total number of sessions ever reserved.
func (p *Pool) Capacity() int { return len(p.all) }

// Available reports the number of sessions currently free.
func (p *Pool) Available() int { return len(p.free) }

// Acquire returns a free session, or ok=false if the pool is
// exhausted. Exhaustion is not an error in itself — an open-loop
// arrival process treats it as a saturation event: the virtual user is
// counted as blocked and dropped, not queued.
func (p *Pool) Acquire() (s *session.Session, ok bool) {
	n := len(p.free)
	if n == 0 {
		return nil, false
	}
	s = p.free[n-1]
	p.free = p.free[:n-1]
	return s, true
}

// Release resets s's variable table and scheduled-actions heap and
// returns it to the free list.
func (p *Pool) Release(s *session.Session) {
	s.Reset()
	p.free = append(p.free, s)
}
