// Package config loads a benchmark definition and its execution
// settings from YAML, the way a load-injection tool's users actually
// author scenarios: one file describing phases/scenarios/steps, a
// second (optional) one describing how to run them (executor count,
// queue depth, logging, metrics).
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/csb/phasebench/internal/benchmark"
	"github.com/csb/phasebench/internal/session"
	"github.com/csb/phasebench/internal/steps"
	"github.com/csb/phasebench/internal/transport"
)

// Load reads and parses a benchmark definition file. Steps that need a
// logger or an HTTP transport pool (log, httpRequest) fail to build;
// use LoadWithSteps once those collaborators exist.
func Load(path string) (*benchmark.Definition, error) {
	return loadDefinition(path, nil)
}

// LoadWithSteps is Load, but wires httpPool into any httpRequest steps
// and logger into any log steps the definition declares. Split out from
// Load because those two collaborators usually aren't ready until after
// the execution config (executor count, worker pool size) is known.
func LoadWithSteps(path string, logger *zap.Logger, httpPool *transport.Pool) (*benchmark.Definition, error) {
	return loadDefinition(path, &stepDeps{logger: logger, httpPool: httpPool})
}

func loadDefinition(path string, deps *stepDeps) (*benchmark.Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading benchmark definition %s", path)
	}
	var fd fileDefinition
	if err := yaml.Unmarshal(raw, &fd); err != nil {
		return nil, errors.Wrapf(err, "parsing benchmark definition %s", path)
	}
	return fd.toDefinition(deps)
}

// ExecutionConfig is the run-time (as opposed to benchmark-definition)
// configuration: how many executors to spread phases across, how deep
// each one's task queue is, and ambient logging/metrics settings.
type ExecutionConfig struct {
	Executors   int    `yaml:"executors"`
	QueueDepth  int    `yaml:"queueDepth"`
	HTTPWorkers int    `yaml:"httpWorkers"`
	MetricsAddr string `yaml:"metricsAddr"`
	LogLevel    string `yaml:"logLevel"`
}

// DefaultExecutionConfig returns sane defaults for running locally.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		Executors:   1,
		QueueDepth:  4096,
		HTTPWorkers: 256,
		MetricsAddr: ":9090",
		LogLevel:    "info",
	}
}

// LoadExecutionConfig reads an execution config file, starting from
// DefaultExecutionConfig and overriding whatever the file sets.
func LoadExecutionConfig(path string) (ExecutionConfig, error) {
	cfg := DefaultExecutionConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading execution config %s", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing execution config %s", path)
	}
	return cfg, nil
}

// --- YAML shape ---

type fileDefinition struct {
	Name   string      `yaml:"name"`
	Agents []string    `yaml:"agents"`
	Phases []filePhase `yaml:"phases"`
}

type filePhase struct {
	Name                  string        `yaml:"name"`
	StartTime             string        `yaml:"startTime"`
	StartAfter            []string      `yaml:"startAfter"`
	StartAfterStrict      []string      `yaml:"startAfterStrict"`
	TerminateAfterStrict  []string      `yaml:"terminateAfterStrict"`
	Duration              string        `yaml:"duration"`
	MaxDuration           string        `yaml:"maxDuration"`
	Arrival               fileArrival   `yaml:"arrival"`
	Scenario              fileScenario  `yaml:"scenario"`
}

type fileArrival struct {
	Kind                string  `yaml:"kind"`
	Users               int     `yaml:"users"`
	UsersPerSec         float64 `yaml:"usersPerSec"`
	InitialUsersPerSec  float64 `yaml:"initialUsersPerSec"`
	TargetUsersPerSec   float64 `yaml:"targetUsersPerSec"`
	MaxSessionsEstimate int     `yaml:"maxSessionsEstimate"`
	Repeats             int     `yaml:"repeats"`
}

type fileScenario struct {
	Variables map[string]string `yaml:"variables"`
	Sequences []fileSequence    `yaml:"sequences"`
}

type fileSequence struct {
	Name  string     `yaml:"name"`
	Steps []fileStep `yaml:"steps"`
}

type fileStep struct {
	Type string `yaml:"type"`

	Delay   string `yaml:"delay,omitempty"`
	DoneVar string `yaml:"doneVar,omitempty"`

	CounterKey string `yaml:"counterKey,omitempty"`
	Threshold  int64  `yaml:"threshold,omitempty"`
	PollEvery  string `yaml:"pollEvery,omitempty"`

	Var   string `yaml:"var,omitempty"`
	Value any    `yaml:"value,omitempty"`

	Message string `yaml:"message,omitempty"`

	Method     string `yaml:"method,omitempty"`
	URL        string `yaml:"url,omitempty"`
	PendingVar string `yaml:"pendingVar,omitempty"`
	StatusVar  string `yaml:"statusVar,omitempty"`
}

var arrivalKinds = map[string]benchmark.ArrivalKind{
	"atOnce":         benchmark.AtOnce,
	"always":         benchmark.Always,
	"constantPerSec": benchmark.ConstantPerSec,
	"rampPerSec":     benchmark.RampPerSec,
	"sequentially":   benchmark.Sequentially,
}

var varTypes = map[string]session.VarType{
	"any":    session.VarAny,
	"int":    session.VarInt,
	"float":  session.VarFloat,
	"string": session.VarString,
	"bool":   session.VarBool,
}

// stepDeps bundles the collaborators steps that do real I/O or logging
// need. Both may be nil; steps that need the nil one fail to build with
// a clear error rather than panicking at run time.
type stepDeps struct {
	logger   *zap.Logger
	httpPool *transport.Pool
}

func (fd *fileDefinition) toDefinition(deps *stepDeps) (*benchmark.Definition, error) {
	def := &benchmark.Definition{Name: fd.Name, Agents: fd.Agents}
	for _, fp := range fd.Phases {
		p, err := fp.toPhase(deps)
		if err != nil {
			return nil, errors.Wrapf(err, "phase %q", fp.Name)
		}
		def.Phases = append(def.Phases, p)
	}
	return def, nil
}

func (fp *filePhase) toPhase(deps *stepDeps) (*benchmark.Phase, error) {
	arrivalKind, ok := arrivalKinds[fp.Arrival.Kind]
	if !ok {
		return nil, errors.Newf("unknown arrival kind %q", fp.Arrival.Kind)
	}

	p := &benchmark.Phase{
		Name:                 fp.Name,
		StartAfter:           fp.StartAfter,
		StartAfterStrict:     fp.StartAfterStrict,
		TerminateAfterStrict: fp.TerminateAfterStrict,
		Arrival: benchmark.ArrivalSpec{
			Kind:                arrivalKind,
			Users:               fp.Arrival.Users,
			UsersPerSec:         fp.Arrival.UsersPerSec,
			InitialUsersPerSec:  fp.Arrival.InitialUsersPerSec,
			TargetUsersPerSec:   fp.Arrival.TargetUsersPerSec,
			MaxSessionsEstimate: fp.Arrival.MaxSessionsEstimate,
			Repeats:             fp.Arrival.Repeats,
		},
	}

	if fp.StartTime != "" {
		d, err := time.ParseDuration(fp.StartTime)
		if err != nil {
			return nil, errors.Wrapf(err, "startTime")
		}
		p.StartTime = &d
	}
	if fp.Duration != "" {
		d, err := time.ParseDuration(fp.Duration)
		if err != nil {
			return nil, errors.Wrapf(err, "duration")
		}
		p.Duration = d
	}
	if fp.MaxDuration != "" {
		d, err := time.ParseDuration(fp.MaxDuration)
		if err != nil {
			return nil, errors.Wrapf(err, "maxDuration")
		}
		p.MaxDuration = &d
	}

	scenario, err := fp.Scenario.toScenario(deps)
	if err != nil {
		return nil, err
	}
	p.Scenario = scenario
	return p, nil
}

func (fs *fileScenario) toScenario(deps *stepDeps) (*benchmark.Scenario, error) {
	vars := make(map[string]session.VarType, len(fs.Variables))
	for name, typeName := range fs.Variables {
		t, ok := varTypes[typeName]
		if !ok {
			return nil, errors.Newf("variable %q: unknown type %q", name, typeName)
		}
		vars[name] = t
	}

	scenario := &benchmark.Scenario{Variables: vars}
	for _, fseq := range fs.Sequences {
		seq := &session.Sequence{Name: fseq.Name}
		for i, fstep := range fseq.Steps {
			st, err := fstep.build(deps)
			if err != nil {
				return nil, errors.Wrapf(err, "sequence %q step %d", fseq.Name, i)
			}
			seq.Steps = append(seq.Steps, st)
		}
		scenario.InitialSequences = append(scenario.InitialSequences, seq)
	}
	return scenario, nil
}

func (fstep *fileStep) build(deps *stepDeps) (session.Step, error) {
	switch fstep.Type {
	case "delay":
		d, err := time.ParseDuration(fstep.Delay)
		if err != nil {
			return nil, errors.Wrapf(err, "delay")
		}
		return &steps.Delay{Dur: d, DoneVar: fstep.DoneVar}, nil

	case "awaitCounter":
		var every time.Duration
		if fstep.PollEvery != "" {
			d, err := time.ParseDuration(fstep.PollEvery)
			if err != nil {
				return nil, errors.Wrapf(err, "pollEvery")
			}
			every = d
		}
		return &steps.AwaitCounter{CounterKey: fstep.CounterKey, Threshold: fstep.Threshold, PollEvery: every}, nil

	case "setVar":
		return &steps.SetVar{Name: fstep.Var, Val: fstep.Value}, nil

	case "log":
		if deps == nil || deps.logger == nil {
			return nil, errors.Newf("log step requires a logger")
		}
		return &steps.Log{Logger: deps.logger, Msg: fstep.Message}, nil

	case "httpRequest":
		if deps == nil || deps.httpPool == nil {
			return nil, errors.Newf("httpRequest step requires an HTTP transport pool")
		}
		return &steps.HTTPRequest{
			Pool:       deps.httpPool,
			Method:     fstep.Method,
			URL:        fstep.URL,
			PendingVar: fstep.PendingVar,
			DoneVar:    fstep.DoneVar,
			StatusVar:  fstep.StatusVar,
		}, nil

	default:
		return nil, errors.Newf("unknown step type %q", fstep.Type)
	}
}
