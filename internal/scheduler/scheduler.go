// Package scheduler implements the global coordinator that starts,
// finishes, and terminates every phase instance in a benchmark
// according to their startAfter/startAfterStrict/terminateAfterStrict
// dependencies, duration windows, and maxDuration safety valves.
//
// It runs on its own goroutine. Phase status is read through atomics
// and a mutex-guarded condition variable that every phase instance
// signals on transition; dispatching a phase's first burst of sessions
// is posted onto that phase's own executor, since that is where its
// session pool lives.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/csb/phasebench/internal/phase"
)

// Outcome is the benchmark-level result reported once every phase has
// reached TERMINATED.
type Outcome int

const (
	Completed Outcome = iota
	Failed
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "COMPLETED"
	case Failed:
		return "FAILED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Result is the scheduler's final report.
type Result struct {
	Outcome Outcome
	Err     error
	Phases  map[string]phase.Status
}

// Scheduler owns every phase instance in one benchmark run.
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	phases  []*phase.Instance
	byName  map[string]*phase.Instance
	start   time.Time
	stopped bool
}

// New builds a Scheduler over instances, which must already be wired to
// their executors, pools, and interpreters. Every instance is
// registered to broadcast on the scheduler's condition variable when
// its status changes.
func New(instances []*phase.Instance) *Scheduler {
	s := &Scheduler{phases: instances, byName: make(map[string]*phase.Instance, len(instances))}
	s.cond = sync.NewCond(&s.mu)
	for _, inst := range instances {
		s.byName[inst.Def.Name] = inst
		// The broadcast takes s.mu so a transition that lands while Run is
		// between its checks and Wait is not lost; it runs on its own
		// goroutine because the notifier may fire while Run holds s.mu.
		inst.SetNotifier(func() {
			go func() {
				s.mu.Lock()
				s.cond.Broadcast()
				s.mu.Unlock()
			}()
		})
	}
	return s
}

// Run drives every tick of the contract: recompute readiness, dispatch
// starts, check duration/maxDuration deadlines, check
// terminateAfterStrict, sleep until the nearest deadline or the next
// status-change broadcast, repeat until every phase is TERMINATED or
// ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) Result {
	s.start = time.Now()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.cond.Broadcast()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.allTerminatedLocked() || s.stopped {
			break
		}
		now := time.Now()
		s.startReadyLocked(now)
		s.finishDueLocked(now)
		s.terminateStrictLocked()
		if s.allTerminatedLocked() || s.stopped {
			break
		}
		s.waitUntilLocked(s.nextDeadlineLocked(now))
	}
	return s.resultLocked()
}

// startReadyLocked transitions every NOT_STARTED phase whose
// dependencies and start time are satisfied.
func (s *Scheduler) startReadyLocked(now time.Time) {
	for _, inst := range s.phases {
		if inst.Status() != phase.NotStarted {
			continue
		}
		if s.readyLocked(inst, now) {
			inst.Start(now)
		}
	}
}

// readyLocked implements the ready predicate: every startAfter
// dependency has at least reached FINISHED, every startAfterStrict
// dependency has reached TERMINATED, and any explicit startTime offset
// has elapsed. Status values are declared in the order NOT_STARTED <
// RUNNING < FINISHED < TERMINATING < TERMINATED, so "at least FINISHED"
// is a plain numeric comparison.
func (s *Scheduler) readyLocked(inst *phase.Instance, now time.Time) bool {
	for _, dep := range inst.Def.StartAfter {
		if s.byName[dep].Status() < phase.Finished {
			return false
		}
	}
	for _, dep := range inst.Def.StartAfterStrict {
		if s.byName[dep].Status() != phase.Terminated {
			return false
		}
	}
	if inst.Def.StartTime != nil && now.Before(s.start.Add(*inst.Def.StartTime)) {
		return false
	}
	return true
}

// finishDueLocked invokes Finish on every RUNNING phase whose duration
// has elapsed, and Terminate on every RUNNING phase whose maxDuration
// safety valve has elapsed. A phase with Duration <= 0 has no
// duration-based finish: AtOnce finishes itself and Sequentially
// terminates itself once its arrival process is done; the other models
// keep running until a maxDuration, a failure, or ctx stops them.
func (s *Scheduler) finishDueLocked(now time.Time) {
	for _, inst := range s.phases {
		if inst.Status() != phase.Running {
			continue
		}
		elapsed := now.Sub(inst.AbsoluteStart())
		if inst.Def.Duration > 0 && elapsed >= inst.Def.Duration {
			inst.Finish()
		}
		if inst.Def.MaxDuration != nil && elapsed >= *inst.Def.MaxDuration {
			inst.Terminate()
		}
	}
}

// terminateStrictLocked invokes Terminate on every FINISHED phase whose
// terminateAfterStrict dependencies have all reached TERMINATED.
func (s *Scheduler) terminateStrictLocked() {
	for _, inst := range s.phases {
		if inst.Status() != phase.Finished || len(inst.Def.TerminateAfterStrict) == 0 {
			continue
		}
		ready := true
		for _, dep := range inst.Def.TerminateAfterStrict {
			if s.byName[dep].Status() != phase.Terminated {
				ready = false
				break
			}
		}
		if ready {
			inst.Terminate()
		}
	}
}

func (s *Scheduler) allTerminatedLocked() bool {
	for _, inst := range s.phases {
		if inst.Status() != phase.Terminated {
			return false
		}
	}
	return true
}

// nextDeadlineLocked is the earliest future instant any phase has a
// clock-driven reason to be re-examined: a startTime offset still
// ahead, a duration window still open, or a maxDuration still ahead.
// Dependency-driven readiness needs no deadline of its own — a
// dependency's own transition broadcasts and wakes this loop directly.
// Phases with no such deadline don't constrain the wait; if none exist
// at all, a one-hour cap bounds the wait without mattering in practice.
func (s *Scheduler) nextDeadlineLocked(now time.Time) time.Time {
	soonest := now.Add(time.Hour)
	consider := func(t time.Time) {
		if t.Before(soonest) {
			soonest = t
		}
	}
	for _, inst := range s.phases {
		switch inst.Status() {
		case phase.NotStarted:
			if inst.Def.StartTime != nil {
				consider(s.start.Add(*inst.Def.StartTime))
			}
		case phase.Running:
			if inst.Def.Duration > 0 {
				consider(inst.AbsoluteStart().Add(inst.Def.Duration))
			}
			if inst.Def.MaxDuration != nil {
				consider(inst.AbsoluteStart().Add(*inst.Def.MaxDuration))
			}
		}
	}
	return soonest
}

// waitUntilLocked blocks on the condition variable until some phase
// broadcasts a transition or deadline passes, whichever comes first.
// Must be called with s.mu held; Wait releases and reacquires it.
func (s *Scheduler) waitUntilLocked(deadline time.Time) {
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	// Taking s.mu before broadcasting means a timer that fires before
	// Wait has released the lock still wakes it, instead of being lost.
	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer timer.Stop()
	s.cond.Wait()
}

func (s *Scheduler) resultLocked() Result {
	res := Result{Outcome: Completed, Phases: make(map[string]phase.Status, len(s.phases))}
	if s.stopped && !s.allTerminatedLocked() {
		res.Outcome = Aborted
	}
	for _, inst := range s.phases {
		res.Phases[inst.Def.Name] = inst.Status()
		if err := inst.Err(); err != nil && res.Err == nil {
			res.Err = err
			if res.Outcome == Completed {
				res.Outcome = Failed
			}
		}
	}
	return res
}
