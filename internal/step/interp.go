// Package step implements the step interpreter: it drives every
// running sequence instance on a session through its steps, one tick at
// a time, handling advance/park/fail/terminate and notifying the
// owning phase when a session's scenario completes.
package step

import (
	"time"

	"github.com/csb/phasebench/internal/errs"
	"github.com/csb/phasebench/internal/session"
)

// Interpreter is stateless — a single instance is shared by every
// session on an executor. It exists as a type (rather than a free
// function) so call sites read like the rest of the component table
// and so a future implementation could carry tracing/metrics state.
type Interpreter struct{}

// New returns an Interpreter. There's nothing to configure: the tick
// algorithm is fixed.
func New() *Interpreter { return &Interpreter{} }

// Tick drives s through one round of its running sequence instances:
//  1. invoke the current step
//  2. advance -> bump PC, and if at end, mark the instance done
//  3. park -> leave PC, move to the next instance
//  4. fail -> mark the instance done and record the error on the phase,
//     whose Fail releases the session; the tick stops there
//  5. terminateSession -> drop the session immediately
//
// Tick first drains any scheduled actions whose deadline has passed,
// since those are a wake source that may flip a step's park condition
// before it is next invoked.
func (in *Interpreter) Tick(s *session.Session) {
	s.FireDue(time.Now())

	for _, inst := range s.Instances {
		if inst.Done {
			continue
		}
		if in.driveInstance(s, inst) {
			// terminateSession or fail: the whole session has been handed
			// back to the phase, not just this instance's sequence.
			return
		}
	}

	if s.Complete() {
		s.Phase.NotifyFinished(s)
	}
}

// driveInstance repeatedly invokes steps on one sequence instance until
// it parks, fails, or finishes. It returns true if the session was
// terminated outright or failed (the phase has then taken the session
// back), in which case the caller must stop processing the session's
// remaining instances.
func (in *Interpreter) driveInstance(s *session.Session, inst *session.SequenceInstance) (terminated bool) {
	for {
		if inst.AtEnd() {
			inst.Done = true
			return false
		}
		result := inst.Current().Invoke(s)
		switch result.Outcome {
		case session.Advance:
			inst.PC++
		case session.Park:
			return false
		case session.Fail:
			inst.Done = true
			err := result.Err
			if err == nil {
				err = errs.NewInternalAssertionFailure("step returned Fail with a nil error", nil)
			}
			s.Phase.Fail(s, errs.NewSessionError(inst.Sequence.Name, s.ID, err))
			return true
		case session.Terminate:
			for _, other := range s.Instances {
				other.Done = true
			}
			s.Phase.NotifyFinished(s)
			return true
		}
	}
}
