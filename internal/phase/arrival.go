package phase

import (
	"math"
	"time"

	"github.com/csb/phasebench/internal/errs"
	"github.com/csb/phasebench/internal/session"
)

// atOnceArrival starts a fixed burst of users once and lets them run to
// completion. A closed model: it never starts a user in response to a
// clock tick, only at t=0.
type atOnceArrival struct{ inst *Instance }

func (a *atOnceArrival) start(now time.Time) {
	users := a.inst.Def.Arrival.Users
	if users <= 0 {
		a.inst.Finish()
		return
	}
	a.inst.activeSessions.Store(int64(users))
	for i := 0; i < users; i++ {
		if !a.inst.acquireAndStart(a.inst.Def.Scenario.InitialSequences) {
			a.inst.assertionFailure(errs.NewInternalAssertionFailure("atOnce: pool exhausted despite reserved capacity", nil))
			return
		}
	}
}

func (a *atOnceArrival) onFinished(s *session.Session) {
	a.inst.release(s)
	a.inst.finishIfDrainedAndRunning()
}

// alwaysArrival keeps exactly Users sessions running for the whole
// phase, replacing a completion with a fresh run of the same scenario
// immediately. A closed model: total session starts over the phase's
// life is open-ended, but the active count is pinned at Users for as
// long as the phase is RUNNING.
type alwaysArrival struct{ inst *Instance }

func (a *alwaysArrival) start(now time.Time) {
	users := a.inst.Def.Arrival.Users
	a.inst.activeSessions.Store(int64(users))
	for i := 0; i < users; i++ {
		if !a.inst.acquireAndStart(a.inst.Def.Scenario.InitialSequences) {
			a.inst.assertionFailure(errs.NewInternalAssertionFailure("always: pool exhausted despite reserved capacity", nil))
			return
		}
	}
}

func (a *alwaysArrival) onFinished(s *session.Session) {
	if Status(a.inst.status.Load()) == Running {
		// Posted rather than called inline: a scenario that completes
		// without ever parking would otherwise recurse
		// onFinished->armAndTick->Tick->onFinished with no bound on stack
		// depth. Posting unwinds the call stack on every re-arm.
		a.inst.executor.Post(func() { a.inst.armAndTick(s, a.inst.Def.Scenario.InitialSequences) })
		return
	}
	a.inst.release(s)
}

// constantPerSecArrival starts new users at a fixed rate, computing on
// every tick how many should have started by now and topping up the
// difference. Required(t) = floor(t_ms * usersPerSec / 1000); the next
// deadline is the smallest t at which required(t) grows by one,
// recomputed by ceiling division so rounding never accumulates drift.
type constantPerSecArrival struct {
	inst         *Instance
	lambda       float64
	startedUsers int64
}

func (c *constantPerSecArrival) start(now time.Time) { c.tick(now) }

func (c *constantPerSecArrival) tick(now time.Time) {
	inst := c.inst
	if Status(inst.status.Load()) != Running {
		return
	}

	deltaMs := now.Sub(inst.absoluteStart).Milliseconds()
	if deltaMs < 0 {
		deltaMs = 0
	}
	required := int64(float64(deltaMs) * c.lambda / 1000.0)

	for i := c.startedUsers + 1; i <= required; i++ {
		if inst.activeSessions.Add(1) < 0 {
			// The phase finished between ticks and the sentinel has
			// engaged; stop dispatching for the rest of this tick.
			return
		}
		if !inst.acquireAndStart(inst.Def.Scenario.InitialSequences) {
			// The blocked user is dropped, so it no longer counts as active.
			if inst.activeSessions.Add(-1) == 0 {
				inst.finalizeIfIdle()
			}
			if inst.stats != nil {
				inst.stats.SessionBlocked(inst.Def.Name)
			}
		}
	}
	if required > c.startedUsers {
		c.startedUsers = required
	}

	nextDeltaMs := math.Ceil(1000.0 * float64(c.startedUsers+1) / c.lambda)
	target := inst.absoluteStart.Add(time.Duration(nextDeltaMs) * time.Millisecond)
	inst.executor.Schedule(time.Until(target), func() { c.tick(time.Now()) })
}

func (c *constantPerSecArrival) onFinished(s *session.Session) {
	c.inst.release(s)
}

// rampPerSecArrival linearly interpolates the arrival rate from initial
// to target over the phase's duration. Required(t) integrates the
// instantaneous rate: floor((t*lambda0 + (lambda1-lambda0)*t^2/(2*D)) /
// 1000) with t and D in milliseconds — the area under a linearly
// ramping rate curve is its average (not its peak) times elapsed time,
// hence the /2. Rather than solving that quadratic for the exact next
// deadline, each tick re-arms itself after roughly the time one more
// arrival should take at the *current* instantaneous rate — a small,
// bounded approximation that self-corrects every tick since required()
// is recomputed from absolute elapsed time, not from the schedule.
type rampPerSecArrival struct {
	inst         *Instance
	initial      float64
	target       float64
	startedUsers int64
}

func (r *rampPerSecArrival) start(now time.Time) { r.tick(now) }

func (r *rampPerSecArrival) tick(now time.Time) {
	inst := r.inst
	if Status(inst.status.Load()) != Running {
		return
	}

	deltaMs := float64(now.Sub(inst.absoluteStart).Milliseconds())
	if deltaMs < 0 {
		deltaMs = 0
	}
	durMs := float64(inst.Def.Duration.Milliseconds())
	if durMs <= 0 {
		durMs = 1
	}

	requiredF := (deltaMs*r.initial + (r.target-r.initial)*deltaMs*deltaMs/(2*durMs)) / 1000.0
	if requiredF < 0 {
		requiredF = 0
	}
	required := int64(requiredF)

	for i := r.startedUsers + 1; i <= required; i++ {
		if inst.activeSessions.Add(1) < 0 {
			return
		}
		if !inst.acquireAndStart(inst.Def.Scenario.InitialSequences) {
			if inst.activeSessions.Add(-1) == 0 {
				inst.finalizeIfIdle()
			}
			if inst.stats != nil {
				inst.stats.SessionBlocked(inst.Def.Name)
			}
		}
	}
	if required > r.startedUsers {
		r.startedUsers = required
	}

	if deltaMs >= durMs {
		// The ramp window has elapsed; the scheduler's duration check
		// will call Finish. No need to keep self-scheduling.
		return
	}

	instantRate := r.initial + (r.target-r.initial)*deltaMs/durMs
	waitMs := 5.0
	if instantRate > 0 {
		waitMs = 1000.0 / instantRate
		if waitMs < 1 {
			waitMs = 1
		}
	}
	inst.executor.Schedule(time.Duration(waitMs*float64(time.Millisecond)), func() { r.tick(time.Now()) })
}

func (r *rampPerSecArrival) onFinished(s *session.Session) {
	r.inst.release(s)
}

// sequentiallyArrival runs one session through the scenario Repeats
// times, back to back, then terminates the phase. Only ever one active
// session at a time.
type sequentiallyArrival struct {
	inst    *Instance
	repeats int
	done    int
}

func (sq *sequentiallyArrival) start(now time.Time) {
	sq.inst.activeSessions.Store(1)
	if !sq.inst.acquireAndStart(sq.inst.Def.Scenario.InitialSequences) {
		sq.inst.assertionFailure(errs.NewInternalAssertionFailure("sequentially: pool exhausted despite reserved capacity", nil))
	}
}

func (sq *sequentiallyArrival) onFinished(s *session.Session) {
	sq.done++
	if sq.done < sq.repeats {
		// Posted for the same stack-safety reason as alwaysArrival.onFinished.
		sq.inst.executor.Post(func() { sq.inst.armAndTick(s, sq.inst.Def.Scenario.InitialSequences) })
		return
	}
	sq.inst.release(s)
	sq.inst.Terminate()
}
