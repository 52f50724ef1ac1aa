// Package telemetry is the ambient logging and statistics layer: a
// zap-backed Logger with a plain Log/Logf call shape plus typed event
// methods, and a Prometheus-backed Collector implementing the phase
// package's StatsSink.
package telemetry

import (
	"go.uber.org/zap"
)

// Logger wraps a zap SugaredLogger with a plain Log/Logf call shape,
// plus typed methods for the events a benchmark run actually produces.
type Logger struct {
	z *zap.SugaredLogger
}

// NewLogger builds a Logger at the given level ("debug", "info",
// "warn", "error"; anything else falls back to "info").
func NewLogger(level string) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z.Sugar()}, nil
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() *Logger { return &Logger{z: zap.NewNop().Sugar()} }

func (l *Logger) Log(msg string) { l.z.Info(msg) }

func (l *Logger) Logf(format string, args ...any) { l.z.Infof(format, args...) }

func (l *Logger) LogSessionStart(phase, session string) {
	l.z.Infow("session started", "phase", phase, "session", session)
}

func (l *Logger) LogSessionFinish(phase, session string) {
	l.z.Infow("session finished", "phase", phase, "session", session)
}

func (l *Logger) LogSessionFail(phase, session string, err error) {
	l.z.Errorw("session failed", "phase", phase, "session", session, "error", err)
}

func (l *Logger) LogPhaseTransition(phase, from, to string) {
	l.z.Infow("phase transition", "phase", phase, "from", from, "to", to)
}

func (l *Logger) Sync() error { return l.z.Sync() }

// Raw exposes the underlying *zap.Logger for collaborators (step
// implementations) that want plain structured logging rather than
// this type's typed event methods.
func (l *Logger) Raw() *zap.Logger { return l.z.Desugar() }
