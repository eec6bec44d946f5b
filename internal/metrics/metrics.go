package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll outcomes recorded by the scheduler.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics holds the process counters. Each instance owns its registry so tests
// can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Polls        *prometheus.CounterVec
	Dispatched   prometheus.Counter
	UserFailures *prometheus.CounterVec
	IndexSize    prometheus.Gauge
	BusDrops     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Polls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secretary",
			Name:      "polls_total",
			Help:      "Mailbox polls by outcome.",
		}, []string{"outcome"}),
		Dispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "secretary",
			Name:      "dispatched_messages_total",
			Help:      "New messages published to the bus.",
		}),
		UserFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secretary",
			Name:      "user_failures_total",
			Help:      "Per-user failures by stage.",
		}, []string{"stage"}),
		IndexSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "secretary",
			Name:      "index_entries",
			Help:      "Entries held by the document index.",
		}),
		BusDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secretary",
			Name:      "bus_drops_total",
			Help:      "Deliveries a subscriber did not accept before the publish context ended.",
		}, []string{"subscriber"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
