package ws

import "github.com/prometheus/client_golang/prometheus"

const (
	closeReasonPeer      = "peer_close"
	closeReasonTimeout   = "liveness_timeout"
	closeReasonTransport = "transport_error"
	closeReasonProtocol  = "protocol_error"
	closeReasonShutdown  = "shutdown"
	closeReasonEOF       = "eof"
)

// Metrics - счётчики серверных сессий. Нулевой указатель допустим и
// ничего не записывает.
type Metrics struct {
	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter
	sessionsClosed *prometheus.CounterVec
	framesEchoed   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wsload",
			Subsystem: "server",
			Name:      "sessions_active",
			Help:      "Number of sessions currently running.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsload",
			Subsystem: "server",
			Name:      "sessions_total",
			Help:      "Total number of accepted sessions.",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsload",
			Subsystem: "server",
			Name:      "sessions_closed_total",
			Help:      "Closed sessions by reason.",
		}, []string{"reason"}),
		framesEchoed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsload",
			Subsystem: "server",
			Name:      "frames_echoed_total",
			Help:      "Text and binary frames echoed back to clients.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.sessionsActive, m.sessionsTotal, m.sessionsClosed, m.framesEchoed)
	}

	return m
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}

	m.sessionsActive.Inc()
	m.sessionsTotal.Inc()
}

func (m *Metrics) sessionClosed(reason string) {
	if m == nil {
		return
	}

	m.sessionsActive.Dec()
	m.sessionsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) frameEchoed() {
	if m == nil {
		return
	}

	m.framesEchoed.Inc()
}
