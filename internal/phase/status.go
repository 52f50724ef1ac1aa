// Package phase implements a running phase instance: a live copy of a
// phase definition, its arrival process, and the active-session
// sentinel that is the single synchronization point between the
// arrival loop and the phase scheduler.
package phase

// Status is a phase instance's position in its state machine.
type Status int32

const (
	NotStarted Status = iota
	Running
	Finished
	Terminating
	Terminated
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "NOT_STARTED"
	case Running:
		return "RUNNING"
	case Finished:
		return "FINISHED"
	case Terminating:
		return "TERMINATING"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// validTransition reports whether next is a legal successor of cur:
// NOT_STARTED -> RUNNING, RUNNING -> FINISHED or TERMINATING,
// FINISHED -> TERMINATING, and FINISHED or TERMINATING -> TERMINATED.
// TERMINATED has no successors.
func validTransition(cur, next Status) bool {
	switch {
	case cur == NotStarted && next == Running:
		return true
	case cur == Running && (next == Finished || next == Terminating):
		return true
	case cur == Finished && next == Terminating:
		return true
	case (cur == Finished || cur == Terminating) && next == Terminated:
		return true
	default:
		return false
	}
}
