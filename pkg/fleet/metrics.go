package fleet

import "github.com/prometheus/client_golang/prometheus"

// Metrics - счётчики генератора нагрузки. Нулевой указатель ничего не пишет.
type Metrics struct {
	rounds          prometheus.Counter
	connectAttempts *prometheus.CounterVec
	connectionsOpen prometheus.Gauge
	roundDuration   prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsload",
			Subsystem: "fleet",
			Name:      "rounds_total",
			Help:      "Completed load rounds.",
		}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsload",
			Subsystem: "fleet",
			Name:      "connect_attempts_total",
			Help:      "Connection attempts by result.",
		}, []string{"result"}),
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wsload",
			Subsystem: "fleet",
			Name:      "connections_open",
			Help:      "Connections opened in the current round and not yet signalled to disconnect.",
		}),
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wsload",
			Subsystem: "fleet",
			Name:      "round_duration_seconds",
			Help:      "Time from the first connect attempt to the last disconnect signal of a round.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.rounds, m.connectAttempts, m.connectionsOpen, m.roundDuration)
	}

	return m
}

func (m *Metrics) connectOpened() {
	if m == nil {
		return
	}

	m.connectAttempts.WithLabelValues("opened").Inc()
	m.connectionsOpen.Inc()
}

func (m *Metrics) disconnected() {
	if m == nil {
		return
	}

	m.connectionsOpen.Dec()
}

func (m *Metrics) connectFailed() {
	if m == nil {
		return
	}

	m.connectAttempts.WithLabelValues("failed").Inc()
}

func (m *Metrics) roundFinished(result RoundResult) {
	if m == nil {
		return
	}

	m.rounds.Inc()
	m.roundDuration.Observe(result.Duration.Seconds())
}
