// Package session implements the per-VU data model: the per-VU
// Session, its typed variable table, its scheduled-actions heap, and
// the per-executor ThreadData it shares with co-located sessions. It
// also defines the Step/Sequence contract that the step interpreter
// (internal/step) drives — Session is the capability surface a Step
// implementation sees.
package session

import (
	"container/heap"
	"time"

	"github.com/google/uuid"
)

// PhaseHandle is the owning phase instance's half of the session
// lifecycle contract: a session notifies its phase when its scenario
// completes, or when a step fails it. Implemented by phase.Instance;
// kept as an interface here so this package never imports internal/phase.
type PhaseHandle interface {
	NotifyFinished(s *Session)
	Fail(s *Session, err error)
}

// Session is one virtual user's execution context.
type Session struct {
	ID     string
	Thread *ThreadData
	Phase  PhaseHandle

	// Retick is invoked (by the owning executor, on its loop goroutine)
	// whenever a wake condition fires for this session — a timer due,
	// an HTTP completion, or a watched counter changing. Set by
	// whatever drives the interpreter (typically the phase instance's
	// arrival process) each time the session is dispatched.
	Retick func(*Session)

	vars      Vars
	actions   actionQueue
	Instances []*SequenceInstance
}

// New allocates a session bound to thread, with a variable table sized
// by schema. Pools call this once per pre-allocated slot, up front.
func New(thread *ThreadData, schema *VarSchema) *Session {
	return &Session{
		ID:     uuid.NewString(),
		Thread: thread,
		vars:   newVars(schema),
	}
}

// Vars exposes the typed variable table to step implementations.
func (s *Session) Vars() *Vars { return &s.vars }

// Start arms the session with the sequences it must run, resetting any
// prior run state. Called by the arrival process before first tick.
func (s *Session) Start(sequences []*Sequence) {
	s.vars.reset()
	s.actions = s.actions[:0]
	s.Instances = s.Instances[:0]
	for _, seq := range sequences {
		s.Instances = append(s.Instances, &SequenceInstance{Sequence: seq})
	}
}

// Reset clears the session's variable table, scheduled-action heap,
// and sequence instances so it satisfies the pool's release invariant:
// every session returned to the pool has an empty variable table and
// an empty scheduled-actions heap.
func (s *Session) Reset() {
	s.vars.reset()
	s.actions = s.actions[:0]
	s.Instances = nil
	s.Retick = nil
}

// ScheduleAction pushes a scheduled action onto the session's heap and
// arms the session's Retick callback to fire after d, on the owning
// executor. The action itself runs later, in heap order, whenever
// FireDue next drains it — typically from within that same Retick.
func (s *Session) ScheduleAction(tag string, d time.Duration, run func(*Session)) {
	heap.Push(&s.actions, &ScheduledAction{
		At:  time.Now().Add(d),
		Tag: tag,
		Run: run,
	})
	if s.Thread != nil && s.Thread.Exec != nil {
		s.Thread.Exec.Schedule(d, func() {
			if s.Retick != nil {
				s.Retick(s)
			}
		})
	}
}

// HasPending reports whether an action tagged tag is still queued.
func (s *Session) HasPending(tag string) bool {
	for _, a := range s.actions {
		if a.Tag == tag {
			return true
		}
	}
	return false
}

// FireDue pops and runs every scheduled action whose deadline has
// passed, in non-decreasing time order, and reports whether anything
// fired.
func (s *Session) FireDue(now time.Time) bool {
	fired := false
	for len(s.actions) > 0 && !s.actions[0].At.After(now) {
		a := heap.Pop(&s.actions).(*ScheduledAction)
		if a.Run != nil {
			a.Run(s)
		}
		fired = true
	}
	return fired
}

// NextDeadline returns the earliest pending action's due time, if any.
func (s *Session) NextDeadline() (time.Time, bool) {
	if len(s.actions) == 0 {
		return time.Time{}, false
	}
	return s.actions[0].At, true
}

// Complete is true once every running sequence instance has finished.
func (s *Session) Complete() bool {
	for _, inst := range s.Instances {
		if !inst.Done {
			return false
		}
	}
	return true
}
