package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/csb/phasebench/internal/phase"
)

func counterValue(t *testing.T, cv *prometheus.CounterVec, phaseName string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, cv.WithLabelValues(phaseName).Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, gv *prometheus.GaugeVec, phaseName string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, gv.WithLabelValues(phaseName).Write(&m))
	return m.GetGauge().GetValue()
}

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector(reg, NewNop())
}

func TestCollectorSessionStartIncrementsPerPhase(t *testing.T) {
	c := newTestCollector(t)
	c.SessionStart("ramp")
	c.SessionStart("ramp")
	c.SessionStart("burst")

	require.Equal(t, 2.0, counterValue(t, c.sessionStarts, "ramp"))
	require.Equal(t, 1.0, counterValue(t, c.sessionStarts, "burst"))
}

func TestCollectorSessionFinishIncrements(t *testing.T) {
	c := newTestCollector(t)
	c.SessionFinish("ramp")
	require.Equal(t, 1.0, counterValue(t, c.sessionFinishes, "ramp"))
}

func TestCollectorSessionFailIncrementsAndDoesNotPanicWithNilLog(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, nil)
	require.NotPanics(t, func() { c.SessionFail("ramp", errors.New("boom")) })
	require.Equal(t, 1.0, counterValue(t, c.sessionFailures, "ramp"))
}

func TestCollectorSessionBlockedIncrements(t *testing.T) {
	c := newTestCollector(t)
	c.SessionBlocked("ramp")
	c.SessionBlocked("ramp")
	require.Equal(t, 2.0, counterValue(t, c.sessionBlocked, "ramp"))
}

func TestCollectorPhaseTransitionSetsGaugeToStatusValue(t *testing.T) {
	c := newTestCollector(t)
	c.PhaseTransition("ramp", phase.NotStarted, phase.Running, time.Now())
	require.Equal(t, float64(phase.Running), gaugeValue(t, c.phaseStatus, "ramp"))

	c.PhaseTransition("ramp", phase.Running, phase.Terminated, time.Now())
	require.Equal(t, float64(phase.Terminated), gaugeValue(t, c.phaseStatus, "ramp"))
}

func TestNewLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	l, err := NewLogger("not-a-real-level")
	require.NoError(t, err)
	require.NotNil(t, l)
	require.NoError(t, l.Sync())
}

func TestNewLoggerValidLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		l, err := NewLogger(lvl)
		require.NoError(t, err)
		require.NotNil(t, l)
	}
}

func TestLoggerTypedEventMethodsDoNotPanic(t *testing.T) {
	l := NewNop()
	require.NotPanics(t, func() {
		l.Log("hello")
		l.Logf("count=%d", 3)
		l.LogSessionStart("p", "s1")
		l.LogSessionFinish("p", "s1")
		l.LogSessionFail("p", "s1", errors.New("boom"))
		l.LogPhaseTransition("p", "RUNNING", "TERMINATED")
	})
}

func TestLoggerRawExposesUnderlyingZapLogger(t *testing.T) {
	l := NewNop()
	require.NotNil(t, l.Raw())
}
