package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Outcomes       *prometheus.CounterVec
	LedgerFailures prometheus.Counter
	Verifications  *prometheus.CounterVec
	HandoffErrors  prometheus.Counter
}

// NewMetrics registers the gateway metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkgate_gateway_outcomes_total",
			Help: "Redirect resolutions by resting state",
		}, []string{"state"}),
		LedgerFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "linkgate_gateway_ledger_failures_total",
			Help: "Visit ledger writes that failed and were skipped",
		}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkgate_gateway_identity_verifications_total",
			Help: "Identity verifications by channel and result",
		}, []string{"channel", "result"}),
		HandoffErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "linkgate_gateway_capture_handoff_failures_total",
			Help: "Captures the scheduler could not accept",
		}),
	}
}

func (m *Metrics) outcome(state State) {
	if m != nil {
		m.Outcomes.WithLabelValues(string(state)).Inc()
	}
}

func (m *Metrics) ledgerFailure() {
	if m != nil {
		m.LedgerFailures.Inc()
	}
}

func (m *Metrics) verification(channel, result string) {
	if m != nil {
		m.Verifications.WithLabelValues(channel, result).Inc()
	}
}

func (m *Metrics) handoffFailure() {
	if m != nil {
		m.HandoffErrors.Inc()
	}
}
