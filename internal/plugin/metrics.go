package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "regioncore"

// managerMetrics holds the lifecycle collectors.
type managerMetrics struct {
	ticks         prometheus.Counter
	tickDuration  *prometheus.HistogramVec
	crashes       *prometheus.CounterVec
	handled       *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	plugins       *prometheus.GaugeVec
	phaseDuration *prometheus.HistogramVec
}

func newManagerMetrics(reg prometheus.Registerer) *managerMetrics {
	factory := promauto.With(reg)

	return &managerMetrics{
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "plugins",
			Name:      "ticks_total",
			Help:      "Server ticks driven through the plugin manager.",
		}),
		tickDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "plugins",
				Name:      "tick_duration_seconds",
				Help:      "Duration of one plugin tick callback.",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
			},
			[]string{"plugin"},
		),
		crashes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "plugins",
				Name:      "crashes_total",
				Help:      "Plugin crashes, by plugin and lifecycle phase.",
			},
			[]string{"plugin", "phase"},
		),
		handled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "plugins",
				Name:      "events_handled_total",
				Help:      "Events passed to HandleEvent.",
			},
			[]string{"plugin"},
		),
		dropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "plugins",
				Name:      "events_dropped_total",
				Help:      "Events that never reached HandleEvent, by reason.",
			},
			[]string{"plugin", "reason"},
		),
		plugins: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "plugins",
				Name:      "loaded",
				Help:      "Loaded plugins by state.",
			},
			[]string{"state"},
		),
		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "plugins",
				Name:      "phase_duration_seconds",
				Help:      "Duration of lifecycle callbacks other than tick and handle_event.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
	}
}
