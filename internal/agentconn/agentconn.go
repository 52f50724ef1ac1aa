// Package agentconn is the seam between a benchmark definition's list
// of agents and however those agents actually run: in-process for a
// single-machine run, or over a control connection to a remote worker
// for a distributed one. Only the in-process path is implemented here;
// RemoteCoordinator is the reconnect/lifecycle skeleton a real wire
// protocol would plug into.
package agentconn

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
)

// Coordinator maps agent names (as declared on a benchmark definition)
// to somewhere that can run work tagged for that agent.
type Coordinator interface {
	// Agents returns every agent name this coordinator knows about.
	Agents() []string
	// Dispatch runs fn for the named agent. For a local coordinator this
	// means "run it here, now"; for a remote one it means "the agent's
	// control connection is up and fn has been handed off to it."
	Dispatch(agent string, fn func()) error
}

// LocalCoordinator treats every agent name as an alias for the current
// process: Dispatch just calls fn inline, regardless of how many agent
// names a definition declares. cmd/phasebench's run path does not use a
// coordinator; it runs every phase in-process directly.
type LocalCoordinator struct {
	agents []string
}

func NewLocalCoordinator(agents []string) *LocalCoordinator {
	if len(agents) == 0 {
		agents = []string{"local"}
	}
	return &LocalCoordinator{agents: agents}
}

func (c *LocalCoordinator) Agents() []string { return c.agents }

func (c *LocalCoordinator) Dispatch(agent string, fn func()) error {
	fn()
	return nil
}

// connState is a remote agent's control-connection lifecycle.
type connState int

const (
	connDisconnected connState = iota
	connConnecting
	connConnected
)

// agentConn tracks one remote agent's connection state and its own
// backoff schedule, so one agent reconnecting doesn't reset another's
// backoff.
type agentConn struct {
	mu      sync.Mutex
	state   connState
	backoff backoff.BackOff
}

// RemoteCoordinator is the reconnect-loop skeleton for running agents
// as separate processes over a control connection. Dial is supplied by
// the caller (there is no wire protocol implemented here — connecting
// to a real agent process is out of scope); RemoteCoordinator's job is
// only the exponential-backoff reconnect policy and per-agent state
// tracking around whatever Dial does.
type RemoteCoordinator struct {
	dial func(ctx context.Context, agent string) error

	mu    sync.Mutex
	conns map[string]*agentConn
}

// NewRemoteCoordinator builds a coordinator for agents, each connected
// via dial when Connect is called for it. Nothing reconnects an agent
// on its own; a dropped connection needs another Connect call.
func NewRemoteCoordinator(agents []string, dial func(ctx context.Context, agent string) error) *RemoteCoordinator {
	c := &RemoteCoordinator{dial: dial, conns: make(map[string]*agentConn, len(agents))}
	for _, a := range agents {
		c.conns[a] = &agentConn{backoff: backoff.NewExponentialBackOff()}
	}
	return c
}

func (c *RemoteCoordinator) Agents() []string {
	names := make([]string, 0, len(c.conns))
	for a := range c.conns {
		names = append(names, a)
	}
	return names
}

// Connect dials agent, retrying with exponential backoff until the dial
// succeeds, ctx is canceled, or the backoff policy gives up (the default
// exponential policy stops after its maximum elapsed time).
func (c *RemoteCoordinator) Connect(ctx context.Context, agent string) error {
	ac, ok := c.conns[agent]
	if !ok {
		return errors.Newf("agentconn: unknown agent %q", agent)
	}
	ac.mu.Lock()
	ac.state = connConnecting
	ac.mu.Unlock()

	op := func() error { return c.dial(ctx, agent) }
	notify := func(err error, d time.Duration) {}
	if err := backoff.RetryNotify(op, backoff.WithContext(ac.backoff, ctx), notify); err != nil {
		ac.mu.Lock()
		ac.state = connDisconnected
		ac.mu.Unlock()
		return errors.Wrapf(err, "agentconn: connecting to %q", agent)
	}

	ac.mu.Lock()
	ac.state = connConnected
	ac.backoff.Reset()
	ac.mu.Unlock()
	return nil
}

// Dispatch requires the agent's connection to already be up; a real
// implementation would serialize fn's effect (a start/finish/terminate
// instruction) across the wire instead of calling it directly.
func (c *RemoteCoordinator) Dispatch(agent string, fn func()) error {
	ac, ok := c.conns[agent]
	if !ok {
		return errors.Newf("agentconn: unknown agent %q", agent)
	}
	ac.mu.Lock()
	state := ac.state
	ac.mu.Unlock()
	if state != connConnected {
		return errors.Newf("agentconn: %q is not connected", agent)
	}
	fn()
	return nil
}
