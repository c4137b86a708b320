package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts token refresh activity. A nil *Metrics records nothing.
type Metrics struct {
	refreshes *prometheus.CounterVec
	queued    prometheus.Counter
	replays   prometheus.Counter
	expiries  prometheus.Counter
}

// NewMetrics registers the client's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "erpctl",
			Subsystem: "apiclient",
			Name:      "token_refreshes_total",
			Help:      "Token refresh calls by outcome.",
		}, []string{"outcome"}),
		queued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "erpctl",
			Subsystem: "apiclient",
			Name:      "queued_requests_total",
			Help:      "Requests that waited for an in-flight token refresh.",
		}),
		replays: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "erpctl",
			Subsystem: "apiclient",
			Name:      "replayed_requests_total",
			Help:      "Requests re-issued after an authentication failure.",
		}),
		expiries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "erpctl",
			Subsystem: "apiclient",
			Name:      "session_expirations_total",
			Help:      "Sessions torn down after an unrecoverable authentication failure.",
		}),
	}
}

func (m *Metrics) refresh(outcome string) {
	if m != nil {
		m.refreshes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) queue() {
	if m != nil {
		m.queued.Inc()
	}
}

func (m *Metrics) replay() {
	if m != nil {
		m.replays.Inc()
	}
}

func (m *Metrics) expire() {
	if m != nil {
		m.expiries.Inc()
	}
}
