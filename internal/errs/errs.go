// Package errs defines the error kinds a benchmark run can raise:
// structural definition errors (fatal at setup), per-session step
// failures, saturation events (not fatal — a statistics event), and
// internal assertion failures (abort the whole benchmark).
package errs

import (
	"github.com/cockroachdb/errors"
)

// BenchmarkDefinitionError is a structural problem detected while
// building a benchmark: an unknown phase type, a dangling startAfter
// dependency, or a variable reference without a definition.
type BenchmarkDefinitionError struct {
	Phase string
	cause error
}

func NewBenchmarkDefinitionError(phase string, cause error) *BenchmarkDefinitionError {
	return &BenchmarkDefinitionError{Phase: phase, cause: errors.WithStack(cause)}
}

func (e *BenchmarkDefinitionError) Error() string {
	if e.Phase == "" {
		return errors.Wrap(e.cause, "benchmark definition").Error()
	}
	return errors.Wrapf(e.cause, "benchmark definition: phase %q", e.Phase).Error()
}

func (e *BenchmarkDefinitionError) Unwrap() error { return e.cause }

// SessionError is raised by a step via fail(). It is attached to the
// session and propagated to the owning phase instance via phase.Fail.
type SessionError struct {
	Step    string
	Session string
	cause   error
}

func NewSessionError(step, session string, cause error) *SessionError {
	return &SessionError{Step: step, Session: session, cause: errors.WithStack(cause)}
}

func (e *SessionError) Error() string {
	return errors.Wrapf(e.cause, "step %q failed for session %s", e.Step, e.Session).Error()
}

func (e *SessionError) Unwrap() error { return e.cause }

// SaturationEvent marks a pool-exhaustion at an open-loop arrival
// attempt. It is not fatal — execution continues — but it is reported
// to the statistics collector and is kept as a typed value so callers
// can distinguish it from real failures in logs/metrics.
type SaturationEvent struct {
	Phase string
	At    string // wall-clock formatted by the caller; kept opaque here
}

func (e *SaturationEvent) Error() string {
	return errors.Newf("saturation: phase %q could not acquire a session", e.Phase).Error()
}

// InternalAssertionFailure marks a violated invariant — e.g. a phase
// observed out of its monotonic state machine, or a shared counter
// reserved twice with conflicting types. The only correct response is
// to abort the entire benchmark.
type InternalAssertionFailure struct {
	Invariant string
	cause     error
}

func NewInternalAssertionFailure(invariant string, cause error) *InternalAssertionFailure {
	if cause == nil {
		cause = errors.Newf("invariant violated: %s", invariant)
	}
	return &InternalAssertionFailure{Invariant: invariant, cause: errors.WithStack(cause)}
}

func (e *InternalAssertionFailure) Error() string {
	return errors.Wrapf(e.cause, "internal assertion failed: %s", e.Invariant).Error()
}

func (e *InternalAssertionFailure) Unwrap() error { return e.cause }

// IsFatal reports whether err is (or wraps) a SessionError, BenchmarkDefinitionError,
// or InternalAssertionFailure — the three error kinds that are ever attached
// to a phase's error slot.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var sessErr *SessionError
	var defErr *BenchmarkDefinitionError
	var assertErr *InternalAssertionFailure
	return errors.As(err, &sessErr) || errors.As(err, &defErr) || errors.As(err, &assertErr)
}
