package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/csb/phasebench/internal/phase"
)

// Collector is a Prometheus-backed implementation of phase.StatsSink:
// the four session events are each exported as a per-phase counter;
// phase transitions set a per-phase status gauge and, when a Logger is
// set, are also logged with their from/to statuses.
type Collector struct {
	log *Logger

	sessionStarts   *prometheus.CounterVec
	sessionFinishes *prometheus.CounterVec
	sessionFailures *prometheus.CounterVec
	sessionBlocked  *prometheus.CounterVec
	phaseStatus     *prometheus.GaugeVec
}

// NewCollector registers its metrics against reg. log may be nil, in
// which case phase transitions are tracked only in metrics, not logs.
func NewCollector(reg prometheus.Registerer, log *Logger) *Collector {
	c := &Collector{
		log: log,
		sessionStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phasebench_session_starts_total",
			Help: "Sessions started, by phase.",
		}, []string{"phase"}),
		sessionFinishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phasebench_session_finishes_total",
			Help: "Sessions that completed their scenario, by phase.",
		}, []string{"phase"}),
		sessionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phasebench_session_failures_total",
			Help: "Sessions that ended in a step failure, by phase.",
		}, []string{"phase"}),
		sessionBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "phasebench_session_blocked_total",
			Help: "Arrival attempts that found the session pool exhausted, by phase.",
		}, []string{"phase"}),
		phaseStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "phasebench_phase_status",
			Help: "Current phase status as an enum value (0=NOT_STARTED .. 4=TERMINATED).",
		}, []string{"phase"}),
	}
	reg.MustRegister(c.sessionStarts, c.sessionFinishes, c.sessionFailures, c.sessionBlocked, c.phaseStatus)
	return c
}

func (c *Collector) SessionStart(phaseName string) {
	c.sessionStarts.WithLabelValues(phaseName).Inc()
}

func (c *Collector) SessionFinish(phaseName string) {
	c.sessionFinishes.WithLabelValues(phaseName).Inc()
}

func (c *Collector) SessionFail(phaseName string, err error) {
	c.sessionFailures.WithLabelValues(phaseName).Inc()
	if c.log != nil {
		c.log.LogSessionFail(phaseName, "", err)
	}
}

func (c *Collector) SessionBlocked(phaseName string) {
	c.sessionBlocked.WithLabelValues(phaseName).Inc()
}

func (c *Collector) PhaseTransition(phaseName string, from, to phase.Status, at time.Time) {
	c.phaseStatus.WithLabelValues(phaseName).Set(float64(to))
	if c.log != nil {
		c.log.LogPhaseTransition(phaseName, from.String(), to.String())
	}
}
