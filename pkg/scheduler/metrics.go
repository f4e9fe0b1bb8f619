package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Enqueued     prometheus.Counter
	Deliveries   *prometheus.CounterVec
	TickDuration prometheus.Histogram
}

// NewMetrics registers the scheduler metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Enqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "linkgate_scheduler_enqueued_total",
			Help: "Delivery records created from captures",
		}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkgate_scheduler_deliveries_total",
			Help: "Delivery attempts by result",
		}, []string{"result"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkgate_scheduler_tick_duration_seconds",
			Help:    "Duration of a full scheduler sweep",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

func (m *Metrics) enqueued() {
	if m != nil {
		m.Enqueued.Inc()
	}
}

func (m *Metrics) delivery(result dispatchResult) {
	if m != nil {
		m.Deliveries.WithLabelValues(string(result)).Inc()
	}
}

func (m *Metrics) observeTick(d time.Duration) {
	if m != nil {
		m.TickDuration.Observe(d.Seconds())
	}
}
