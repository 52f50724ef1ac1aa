package session

// Outcome is the result of invoking one step against a session.
type Outcome int

const (
	// Advance consumes the step; the sequence's program counter moves on.
	Advance Outcome = iota
	// Park leaves the program counter where it is and yields to the
	// scheduler; the session is re-ticked when its wake condition holds.
	Park
	// Fail records an error on the owning phase instance and ends the
	// sequence instance.
	Fail
	// Terminate drops the session immediately, regardless of any other
	// running sequence instances.
	Terminate
)

// StepResult is what Step.Invoke returns.
type StepResult struct {
	Outcome Outcome
	Err     error
}

// Step is a single unit of work within a sequence. A step is a
// predicate over session state: it never blocks, and communicates
// "not ready yet" by returning Park rather than by waiting.
type Step interface {
	Invoke(s *Session) StepResult
}

// Sequence is an ordered list of steps, shared read-only across every
// session instantiated from the same scenario.
type Sequence struct {
	Name  string
	Steps []Step
}

// SequenceInstance is one session's position within a Sequence — a
// pointer into one of the scenario's currently-executing sequences. A
// session may run several of these concurrently.
type SequenceInstance struct {
	Sequence *Sequence
	PC       int
	Done     bool
}

// AtEnd reports whether the instance's program counter has run past
// the last step of its sequence.
func (si *SequenceInstance) AtEnd() bool {
	return si.PC >= len(si.Sequence.Steps)
}

// Current returns the step the instance's program counter points at.
// Callers must check AtEnd first.
func (si *SequenceInstance) Current() Step {
	return si.Sequence.Steps[si.PC]
}
