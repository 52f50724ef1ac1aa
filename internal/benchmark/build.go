package benchmark

import (
	"fmt"

	"github.com/csb/phasebench/internal/errs"
	"github.com/csb/phasebench/internal/session"
)

func errMsg(format string, args ...any) error { return fmt.Errorf(format, args...) }

// Built is the output of Build: the validated definition plus the
// benchmark-wide variable schema every session pool derives its Vars
// from. The schema is global rather than per-scenario because a single
// session pool can be shared by several co-located phases, and every
// session handed out of that pool needs the same slot layout
// regardless of which phase is driving it.
type Built struct {
	Def    *Definition
	Schema *session.VarSchema
}

// Build validates def's dependency graph and derives its variable
// schema. Structural problems found here are BenchmarkDefinitionErrors
// and are fatal at setup, before any phase ever starts.
func Build(def *Definition) (*Built, error) {
	if len(def.Phases) == 0 {
		return nil, errs.NewBenchmarkDefinitionError("", errMsg("a benchmark must declare at least one phase"))
	}

	names := make(map[string]*Phase, len(def.Phases))
	for _, p := range def.Phases {
		if _, dup := names[p.Name]; dup {
			return nil, errs.NewBenchmarkDefinitionError(p.Name, errMsg("duplicate phase name"))
		}
		names[p.Name] = p
	}

	for _, p := range def.Phases {
		for _, dep := range p.StartAfter {
			if _, ok := names[dep]; !ok {
				return nil, errs.NewBenchmarkDefinitionError(p.Name, errMsg("startAfter references unknown phase %q", dep))
			}
		}
		for _, dep := range p.StartAfterStrict {
			if _, ok := names[dep]; !ok {
				return nil, errs.NewBenchmarkDefinitionError(p.Name, errMsg("startAfterStrict references unknown phase %q", dep))
			}
		}
		for _, dep := range p.TerminateAfterStrict {
			if _, ok := names[dep]; !ok {
				return nil, errs.NewBenchmarkDefinitionError(p.Name, errMsg("terminateAfterStrict references unknown phase %q", dep))
			}
		}
		if err := validateArrival(p); err != nil {
			return nil, err
		}
	}

	if cyc := findCycle(def.Phases, names); cyc != "" {
		return nil, errs.NewBenchmarkDefinitionError(cyc, errMsg("phase dependency graph has a cycle"))
	}

	decl := make(map[string]session.VarType)
	for _, p := range def.Phases {
		if p.Scenario == nil {
			return nil, errs.NewBenchmarkDefinitionError(p.Name, errMsg("phase has no scenario"))
		}
		for name, t := range p.Scenario.Variables {
			if existing, ok := decl[name]; ok && existing != t {
				return nil, errs.NewBenchmarkDefinitionError(p.Name, errMsg("variable %q declared with conflicting types", name))
			}
			decl[name] = t
		}
	}

	return &Built{Def: def, Schema: session.NewVarSchema(decl)}, nil
}

func validateArrival(p *Phase) error {
	switch p.Arrival.Kind {
	case AtOnce, Always:
		if p.Arrival.Users < 0 {
			return errs.NewBenchmarkDefinitionError(p.Name, errMsg("users must be >= 0"))
		}
	case ConstantPerSec:
		if p.Arrival.UsersPerSec <= 0 {
			return errs.NewBenchmarkDefinitionError(p.Name, errMsg("usersPerSec must be > 0"))
		}
	case RampPerSec:
		if p.Arrival.InitialUsersPerSec < 0 || p.Arrival.TargetUsersPerSec < 0 {
			return errs.NewBenchmarkDefinitionError(p.Name, errMsg("ramp rates must be >= 0"))
		}
		if p.Duration <= 0 {
			return errs.NewBenchmarkDefinitionError(p.Name, errMsg("rampPerSec requires a positive duration"))
		}
	case Sequentially:
		if p.Arrival.Repeats <= 0 {
			return errs.NewBenchmarkDefinitionError(p.Name, errMsg("repeats must be > 0"))
		}
	default:
		return errs.NewBenchmarkDefinitionError(p.Name, errMsg("unknown arrival kind %d", p.Arrival.Kind))
	}
	return nil
}

// findCycle walks startAfter/startAfterStrict edges looking for a
// cycle, returning the name of a phase involved in one (or "" if none).
func findCycle(phases []*Phase, byName map[string]*Phase) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(phases))
	var visit func(name string) bool
	visit = func(name string) bool {
		switch color[name] {
		case gray:
			return true
		case black:
			return false
		}
		color[name] = gray
		p := byName[name]
		for _, dep := range p.StartAfter {
			if visit(dep) {
				return true
			}
		}
		for _, dep := range p.StartAfterStrict {
			if visit(dep) {
				return true
			}
		}
		color[name] = black
		return false
	}
	for _, p := range phases {
		if color[p.Name] == white && visit(p.Name) {
			return p.Name
		}
	}
	return ""
}
