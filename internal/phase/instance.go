package phase

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/csb/phasebench/internal/benchmark"
	"github.com/csb/phasebench/internal/errs"
	"github.com/csb/phasebench/internal/executor"
	"github.com/csb/phasebench/internal/pool"
	"github.com/csb/phasebench/internal/session"
	"github.com/csb/phasebench/internal/step"
)

// sentinel is the value activeSessions is swapped to on the first
// transition into a finishing state, provided it was genuinely zero at
// that moment. It sits well clear of int64's bounds so every later
// racing increment still reads unambiguously negative.
const sentinel = int64(math.MinInt64 / 2)

// StatsSink receives the five observable events a phase instance
// produces. internal/telemetry's Collector implements it; tests can
// supply a recording fake.
type StatsSink interface {
	SessionStart(phase string)
	SessionFinish(phase string)
	SessionFail(phase string, err error)
	SessionBlocked(phase string)
	PhaseTransition(phase string, from, to Status, at time.Time)
}

// arrivalProcess is the behavior a phase instance delegates to for
// starting and replacing sessions. Each of the five variants in
// arrival.go implements it; construction dispatches on the arrival
// spec's tag rather than through a registry, so there is nothing
// process-wide to register at init time.
type arrivalProcess interface {
	start(now time.Time)
	onFinished(s *session.Session)
}

// Instance is a running copy of a phase definition: its status, its
// active-session count, and the arrival process driving it.
type Instance struct {
	Def      *benchmark.Phase
	pool     *pool.Pool
	executor *executor.Executor
	interp   *step.Interpreter
	stats    StatsSink

	status         atomic.Int32
	activeSessions atomic.Int64
	absoluteStart  time.Time

	mu  sync.Mutex
	err error

	onStatusChange func()

	arrival arrivalProcess
}

// New constructs a phase instance bound to pool p, running on executor
// ex, driven by interpreter in, reporting to stats (which may be nil in
// tests that don't care about telemetry).
func New(def *benchmark.Phase, p *pool.Pool, ex *executor.Executor, in *step.Interpreter, stats StatsSink) *Instance {
	inst := &Instance{Def: def, pool: p, executor: ex, interp: in, stats: stats}
	inst.arrival = newArrivalProcess(inst)
	return inst
}

// SetNotifier registers fn to be called (synchronously, on whichever
// goroutine caused the transition) after any status change. The
// scheduler uses this to wake its condition variable. Must be called
// before Start.
func (inst *Instance) SetNotifier(fn func()) { inst.onStatusChange = fn }

// Status returns the instance's current position in the state machine.
func (inst *Instance) Status() Status { return Status(inst.status.Load()) }

// ActiveSessions returns the current count of sessions this phase has
// dispatched and not yet reclaimed. Never negative, even once the
// internal sentinel has engaged.
func (inst *Instance) ActiveSessions() int64 {
	v := inst.activeSessions.Load()
	if v < 0 {
		return 0
	}
	return v
}

// AbsoluteStart returns the wall-clock instant Start was called.
func (inst *Instance) AbsoluteStart() time.Time { return inst.absoluteStart }

// Err returns the first error recorded against this phase, if any.
func (inst *Instance) Err() error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.err
}

// Start transitions NOT_STARTED -> RUNNING and dispatches the arrival
// process's initial burst (or first tick, for the rate-based models).
// Idempotent: a second call is a no-op.
//
// The status flip happens synchronously on the caller's goroutine
// (cheap: an atomic store plus a mutex-guarded bookkeeping update), so
// a scheduler re-checking readiness on its next tick never dispatches
// twice. The arrival process's actual work touches the session pool,
// which is confined to this phase's executor, so it is posted rather
// than run inline.
func (inst *Instance) Start(now time.Time) {
	inst.mu.Lock()
	if Status(inst.status.Load()) != NotStarted {
		inst.mu.Unlock()
		return
	}
	inst.absoluteStart = now
	inst.transitionLocked(NotStarted, Running)
	inst.mu.Unlock()

	inst.executor.Post(func() { inst.arrival.start(now) })
}

// Finish transitions RUNNING -> FINISHED. A no-op if the phase isn't
// currently RUNNING (including if it has already finished).
func (inst *Instance) Finish() { inst.enterFinishing(Finished) }

// Terminate transitions RUNNING or FINISHED -> TERMINATING. Calling it
// any number of times has the same effect as calling it once.
func (inst *Instance) Terminate() { inst.enterFinishing(Terminating) }

// enterFinishing moves the instance into next (FINISHED or
// TERMINATING) and, on the first such transition, atomically swaps
// activeSessions from 0 to sentinel — blocking any arrival-loop
// increment racing in behind it. If the swap succeeds (the phase was
// genuinely idle the moment it started finishing), no session
// completion will ever arrive to drive the final TERMINATED
// transition, so it happens right here instead.
func (inst *Instance) enterFinishing(next Status) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	cur := Status(inst.status.Load())
	if cur == Terminated || cur == next || !validTransition(cur, next) {
		return
	}
	firstFinishingEntry := cur != Finished && cur != Terminating
	inst.transitionLocked(cur, next)
	if firstFinishingEntry && inst.activeSessions.CompareAndSwap(0, sentinel) {
		inst.transitionLocked(next, Terminated)
	}
}

// assertionFailure records err as the phase's first error and forces a
// termination. Used when a closed arrival model (which by construction
// should never saturate its pool) observes one anyway.
func (inst *Instance) assertionFailure(err error) {
	inst.mu.Lock()
	if inst.err == nil {
		inst.err = err
	}
	inst.mu.Unlock()
	if inst.stats != nil {
		inst.stats.SessionFail(inst.Def.Name, err)
	}
	inst.Terminate()
}

// Fail implements session.PhaseHandle: a step raised an error that
// could not be handled within the session. The session is released and
// the phase moves to TERMINATING.
func (inst *Instance) Fail(s *session.Session, err error) {
	inst.mu.Lock()
	if inst.err == nil {
		inst.err = err
	}
	inst.mu.Unlock()
	if inst.stats != nil {
		inst.stats.SessionFail(inst.Def.Name, err)
	}
	inst.release(s)
	inst.Terminate()
}

// NotifyFinished implements session.PhaseHandle: every running sequence
// instance on s has completed. What happens next (release the session,
// or put it straight back to work) is the arrival process's call.
func (inst *Instance) NotifyFinished(s *session.Session) {
	if inst.stats != nil {
		inst.stats.SessionFinish(inst.Def.Name)
	}
	inst.arrival.onFinished(s)
}

// acquireAndStart pulls a session from the pool and arms it to run
// sequences, returning false if the pool was exhausted.
func (inst *Instance) acquireAndStart(sequences []*session.Sequence) bool {
	s, ok := inst.pool.Acquire()
	if !ok {
		return false
	}
	inst.armAndTick(s, sequences)
	return true
}

// armAndTick wires s to this phase, arms it with sequences, and runs
// its first tick. Shared by the initial dispatch and the session-reuse
// paths (Always, Sequentially).
func (inst *Instance) armAndTick(s *session.Session, sequences []*session.Sequence) {
	s.Phase = inst
	s.Start(sequences)
	s.Retick = func(sess *session.Session) { inst.interp.Tick(sess) }
	if inst.stats != nil {
		inst.stats.SessionStart(inst.Def.Name)
	}
	inst.interp.Tick(s)
}

// release returns s to the pool and decrements the active count,
// finalizing the phase to TERMINATED if that was the last session it
// was waiting on.
func (inst *Instance) release(s *session.Session) {
	inst.pool.Release(s)
	if inst.activeSessions.Add(-1) == 0 {
		inst.finalizeIfIdle()
	}
}

// finalizeIfIdle completes the FINISHED/TERMINATING -> TERMINATED
// transition once activeSessions has drained to zero through ordinary
// session completions (as opposed to the enterFinishing fast path,
// which catches the case where it was already zero).
func (inst *Instance) finalizeIfIdle() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	cur := Status(inst.status.Load())
	if cur == Finished || cur == Terminating {
		inst.transitionLocked(cur, Terminated)
	}
}

// finishIfDrainedAndRunning lets a burst arrival model (AtOnce) declare
// itself finished as soon as every user it started has completed,
// without waiting for the scheduler's next tick.
func (inst *Instance) finishIfDrainedAndRunning() {
	if Status(inst.status.Load()) == Running && inst.activeSessions.Load() <= 0 {
		inst.Finish()
	}
}

// transitionLocked sets the status, reports it, and wakes any waiter.
// Caller must hold inst.mu.
func (inst *Instance) transitionLocked(from, to Status) {
	inst.status.Store(int32(to))
	if inst.stats != nil {
		inst.stats.PhaseTransition(inst.Def.Name, from, to, time.Now())
	}
	if inst.onStatusChange != nil {
		inst.onStatusChange()
	}
}

func newArrivalProcess(inst *Instance) arrivalProcess {
	a := inst.Def.Arrival
	switch a.Kind {
	case benchmark.AtOnce:
		return &atOnceArrival{inst: inst}
	case benchmark.Always:
		return &alwaysArrival{inst: inst}
	case benchmark.ConstantPerSec:
		return &constantPerSecArrival{inst: inst, lambda: a.UsersPerSec}
	case benchmark.RampPerSec:
		return &rampPerSecArrival{inst: inst, initial: a.InitialUsersPerSec, target: a.TargetUsersPerSec}
	case benchmark.Sequentially:
		return &sequentiallyArrival{inst: inst, repeats: a.Repeats}
	default:
		// benchmark.Build rejects unknown kinds before any Instance is
		// constructed; reaching this means that validation was bypassed.
		panic(errs.NewInternalAssertionFailure("unknown arrival kind", errors.Newf("kind=%d", a.Kind)).Error())
	}
}
