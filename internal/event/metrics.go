package event

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "regioncore"

// busMetrics holds the bus collectors. With a nil registerer the collectors
// exist but are not exported anywhere.
type busMetrics struct {
	emitted     *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	deliveries  *prometheus.CounterVec
	lagged      *prometheus.CounterVec
	subscribers prometheus.GaugeFunc
}

func newBusMetrics(reg prometheus.Registerer, r *Registry) *busMetrics {
	factory := promauto.With(reg)

	return &busMetrics{
		emitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "bus",
				Name:      "events_emitted_total",
				Help:      "Events accepted by the bus, by event id.",
			},
			[]string{"event"},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "bus",
				Name:      "events_rejected_total",
				Help:      "Emit calls that failed, by reason.",
			},
			[]string{"reason"},
		),
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "bus",
				Name:      "deliveries_total",
				Help:      "Event copies queued on receivers, by event id.",
			},
			[]string{"event"},
		),
		lagged: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "bus",
				Name:      "lagged_total",
				Help:      "Events overwritten in full receivers, by event id.",
			},
			[]string{"event"},
		),
		subscribers: factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "bus",
				Name:      "receivers",
				Help:      "Open receivers across all event types.",
			},
			func() float64 { return float64(r.ReceiverCount()) },
		),
	}
}
