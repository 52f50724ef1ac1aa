// Package steps is a small library of session.Step implementations:
// enough to write scenarios without every benchmark author hand-rolling
// the same delay/counter/logging primitives. Each step is a plain
// struct so a scenario loader can build one straight from parsed
// configuration without reflection.
package steps

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/csb/phasebench/internal/session"
	"github.com/csb/phasebench/internal/transport"
)

// Delay parks for Dur before advancing. DoneVar names a bool session
// variable (declared in the scenario's schema) the step uses to
// remember "the wait already fired" across ticks — a session's steps
// are re-entered on every tick, so the step itself can't hold that bit
// on its own struct without corrupting concurrently-running sessions
// that share the same *Delay value.
type Delay struct {
	Dur     time.Duration
	DoneVar string
}

func (d *Delay) Invoke(s *session.Session) session.StepResult {
	if s.Vars().IsSet(d.DoneVar) {
		s.Vars().Unset(d.DoneVar)
		return session.StepResult{Outcome: session.Advance}
	}
	if s.HasPending(d.DoneVar) {
		return session.StepResult{Outcome: session.Park}
	}
	s.ScheduleAction(d.DoneVar, d.Dur, func(sess *session.Session) {
		sess.Vars().Set(d.DoneVar, true)
	})
	return session.StepResult{Outcome: session.Park}
}

// AwaitCounter parks until a shared counter reaches at least Threshold,
// polling every PollEvery (defaulting to 10ms if unset).
type AwaitCounter struct {
	CounterKey string
	Threshold  int64
	PollEvery  time.Duration
}

func (a *AwaitCounter) Invoke(s *session.Session) session.StepResult {
	c := s.Thread.Counter(a.CounterKey)
	if c == nil {
		return session.StepResult{Outcome: session.Fail, Err: errCounterNotReserved(a.CounterKey)}
	}
	if c.Get() >= a.Threshold {
		return session.StepResult{Outcome: session.Advance}
	}
	tag := "awaitCounter:" + a.CounterKey
	if !s.HasPending(tag) {
		every := a.PollEvery
		if every <= 0 {
			every = 10 * time.Millisecond
		}
		s.ScheduleAction(tag, every, func(*session.Session) {})
	}
	return session.StepResult{Outcome: session.Park}
}

// SetVar unconditionally sets a session variable and advances. Val must
// fit the variable's declared type: any integer kind or json.Number for
// an int variable, float64, float32, int, int64 or json.Number for a
// float variable, bool, string, or any type for a variable declared
// VarAny.
type SetVar struct {
	Name string
	Val  any
}

func (v *SetVar) Invoke(s *session.Session) session.StepResult {
	s.Vars().Set(v.Name, v.Val)
	return session.StepResult{Outcome: session.Advance}
}

// Log writes Msg (with the session ID attached) through a shared zap
// logger and advances. Never parks, never fails.
type Log struct {
	Logger *zap.Logger
	Msg    string
}

func (l *Log) Invoke(s *session.Session) session.StepResult {
	l.Logger.Info(l.Msg, zap.String("session", s.ID))
	return session.StepResult{Outcome: session.Advance}
}

// HTTPRequest issues an HTTP request through a transport.Pool and
// parks until the response (or a transport error) arrives.
// PendingVar and DoneVar are bool session variables the step uses to
// track in-flight state across ticks; StatusVar, if non-empty, is an
// int variable set to the response status code on success.
type HTTPRequest struct {
	Pool       *transport.Pool
	Method     string
	URL        string
	PendingVar string
	DoneVar    string
	StatusVar  string
}

func (h *HTTPRequest) Invoke(s *session.Session) session.StepResult {
	if s.Vars().IsSet(h.DoneVar) {
		s.Vars().Unset(h.DoneVar)
		return session.StepResult{Outcome: session.Advance}
	}
	if s.Vars().IsSet(h.PendingVar) {
		return session.StepResult{Outcome: session.Park}
	}

	req, err := http.NewRequest(h.Method, h.URL, nil)
	if err != nil {
		return session.StepResult{Outcome: session.Fail, Err: err}
	}

	s.Vars().Set(h.PendingVar, true)
	err = h.Pool.Submit(s.Thread.Exec, req, func(resp *http.Response, err error) {
		s.Vars().Unset(h.PendingVar)
		if err == nil {
			defer resp.Body.Close()
			if h.StatusVar != "" {
				s.Vars().Set(h.StatusVar, int64(resp.StatusCode))
			}
		}
		s.Vars().Set(h.DoneVar, true)
		if s.Retick != nil {
			s.Retick(s)
		}
	})
	if err != nil {
		s.Vars().Unset(h.PendingVar)
		return session.StepResult{Outcome: session.Fail, Err: err}
	}
	return session.StepResult{Outcome: session.Park}
}

type counterNotReservedError struct{ key string }

func (e *counterNotReservedError) Error() string {
	return "awaitCounter: counter " + e.key + " was never reserved"
}

func errCounterNotReserved(key string) error { return &counterNotReservedError{key: key} }
