package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts session activity. A nil *Metrics records nothing.
type Metrics struct {
	// Transitions counts published states by phase.
	Transitions *prometheus.CounterVec

	// Refreshes counts refresh attempts by result
	// ("ok", "rejected", "server", "transport", "malformed", "storage").
	Refreshes *prometheus.CounterVec

	// GatewayErrors counts failed gateway calls by operation.
	GatewayErrors *prometheus.CounterVec
}

// NewMetrics registers the session collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tabchat",
				Subsystem: "session",
				Name:      "transitions_total",
				Help:      "Total number of published auth states",
			},
			[]string{"phase"},
		),
		Refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tabchat",
				Subsystem: "session",
				Name:      "refreshes_total",
				Help:      "Total number of access token refresh attempts",
			},
			[]string{"result"},
		),
		GatewayErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tabchat",
				Subsystem: "session",
				Name:      "gateway_errors_total",
				Help:      "Total number of failed auth gateway calls",
			},
			[]string{"operation"},
		),
	}
}

func (m *Metrics) recordTransition(p Phase) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(p.String()).Inc()
}

func (m *Metrics) recordRefresh(result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) recordGatewayError(operation string) {
	if m == nil {
		return
	}
	m.GatewayErrors.WithLabelValues(operation).Inc()
}
