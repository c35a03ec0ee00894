package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks session lifecycle counters for the /metrics endpoint.
type Metrics struct {
	polls       prometheus.Counter
	events      *prometheus.CounterVec
	established prometheus.Counter
	failed      *prometheus.CounterVec
	ended       *prometheus.CounterVec
	active      prometheus.Gauge
}

// NewMetrics creates and registers the session metrics. reg may be nil, in
// which case the metrics are created unregistered (useful in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labridge_polls_total",
			Help: "Backend poll round trips issued.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labridge_poll_events_total",
			Help: "Backend events received, by kind.",
		}, []string{"kind"}),
		established: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "labridge_sessions_established_total",
			Help: "Sessions accepted by a human agent.",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labridge_sessions_failed_total",
			Help: "Session attempts that ended without an agent, by reason.",
		}, []string{"reason"}),
		ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labridge_sessions_ended_total",
			Help: "Established sessions that terminated, by cause.",
		}, []string{"cause"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "labridge_active_poll_loops",
			Help: "Poll loops currently running.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.polls, m.events, m.established, m.failed, m.ended, m.active)
	}
	return m
}

func (m *Metrics) recordPoll() {
	if m != nil {
		m.polls.Inc()
	}
}

func (m *Metrics) recordEvent(kind string) {
	if m != nil {
		m.events.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) recordEstablished() {
	if m != nil {
		m.established.Inc()
	}
}

func (m *Metrics) recordFailed(reason string) {
	if m != nil {
		m.failed.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) recordEnded(cause string) {
	if m != nil {
		m.ended.WithLabelValues(cause).Inc()
	}
}

func (m *Metrics) loopStarted() {
	if m != nil {
		m.active.Inc()
	}
}

func (m *Metrics) loopStopped() {
	if m != nil {
		m.active.Dec()
	}
}
