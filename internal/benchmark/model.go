// Package benchmark is the immutable data model of a benchmark run: a
// Definition is a name plus a simulation (a set of phases with a
// partial order induced by startAfter/startAfterStrict dependencies).
// Parsing YAML into this model is an external collaborator's job
// (internal/config); this package only describes the shape and
// validates/builds it.
package benchmark

import (
	"time"

	"github.com/csb/phasebench/internal/session"
)

// ArrivalKind tags which of the five arrival-process variants a phase
// uses. Phase-instance construction dispatches on this tag with a plain
// switch rather than a type-keyed constructor registry — there is no
// process-wide mutable state to register against.
type ArrivalKind int

const (
	AtOnce ArrivalKind = iota
	Always
	ConstantPerSec
	RampPerSec
	Sequentially
)

func (k ArrivalKind) String() string {
	switch k {
	case AtOnce:
		return "atOnce"
	case Always:
		return "always"
	case ConstantPerSec:
		return "constantPerSec"
	case RampPerSec:
		return "rampPerSec"
	case Sequentially:
		return "sequentially"
	default:
		return "unknown"
	}
}

// ArrivalSpec is the tagged union of the five arrival models. Only the
// fields relevant to Kind are meaningful; Build validates those and
// ignores the rest, whatever their values.
type ArrivalSpec struct {
	Kind ArrivalKind

	Users int // AtOnce, Always

	UsersPerSec         float64 // ConstantPerSec
	InitialUsersPerSec  float64 // RampPerSec
	TargetUsersPerSec   float64 // RampPerSec
	MaxSessionsEstimate int     // ConstantPerSec, RampPerSec

	Repeats int // Sequentially
}

// Scenario is the set of sequences a session walks through: an
// ordered list of initial sequences, a named set of templates that may
// be instantiated dynamically at runtime, and the session variables
// the scenario's steps reference.
type Scenario struct {
	InitialSequences []*session.Sequence
	Templates        map[string]*session.Sequence
	Variables        map[string]session.VarType
}

// Phase is one immutable phase definition.
type Phase struct {
	Name     string
	Scenario *Scenario

	StartTime *time.Duration // absolute offset from benchmark start, if set

	StartAfter           []string
	StartAfterStrict     []string
	TerminateAfterStrict []string

	Duration    time.Duration
	MaxDuration *time.Duration // safety-valve hard stop, if set

	Arrival ArrivalSpec
}

// Definition is an immutable benchmark: a name plus a simulation (the
// phases and the agents it may run across).
type Definition struct {
	Name   string
	Agents []string
	Phases []*Phase
}

// PhaseByName returns the phase named name, or nil.
func (d *Definition) PhaseByName(name string) *Phase {
	for _, p := range d.Phases {
		if p.Name == name {
			return p
		}
	}
	return nil
}
