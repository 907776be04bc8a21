package agent

import (
	"net/http"

	"codeberg.org/mutker/hostmon/internal/errors"
	"codeberg.org/mutker/hostmon/internal/strategy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricNamespace = "hostmon"

// Instrumentation exposes the agent's own health as prometheus metrics. A
// nil *Instrumentation records nothing.
type Instrumentation struct {
	registry         *prometheus.Registry
	strategyRuns     *prometheus.CounterVec
	strategyDuration *prometheus.HistogramVec
	monitors         *prometheus.GaugeVec
	connectors       *prometheus.GaugeVec
	cycles           prometheus.Counter
}

// NewInstrumentation registers the agent metrics on a dedicated registry.
func NewInstrumentation() (*Instrumentation, error) {
	i := &Instrumentation{
		registry: prometheus.NewRegistry(),
		strategyRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "strategy_runs_total",
				Help:      "Strategy runs by strategy and status",
			},
			[]string{"strategy", "status"},
		),
		strategyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricNamespace,
				Name:      "strategy_duration_seconds",
				Help:      "Duration of strategy runs",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 9),
			},
			[]string{"strategy"},
		),
		monitors: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      "monitors",
				Help:      "Monitors registered per resource",
			},
			[]string{"resource"},
		),
		connectors: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricNamespace,
				Name:      "detected_connectors",
				Help:      "Connectors selected by the last detection per resource",
			},
			[]string{"resource"},
		),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "cycles_total",
			Help:      "Completed agent cycles",
		}),
	}

	for _, c := range []prometheus.Collector{i.strategyRuns, i.strategyDuration, i.monitors, i.connectors, i.cycles} {
		if err := i.registry.Register(c); err != nil {
			return nil, errors.New().Wrap(ErrRegisterMetric, err)
		}
	}
	return i, nil
}

func (i *Instrumentation) Registry() *prometheus.Registry {
	return i.registry
}

// Handler serves the registry in the prometheus exposition format.
func (i *Instrumentation) Handler() http.Handler {
	return promhttp.HandlerFor(i.registry, promhttp.HandlerOpts{})
}

func (i *Instrumentation) observeStrategy(r strategy.Result) {
	if i == nil {
		return
	}
	i.strategyRuns.WithLabelValues(r.Strategy, string(r.Status)).Inc()
	i.strategyDuration.WithLabelValues(r.Strategy).Observe(r.Duration.Seconds())
}

func (i *Instrumentation) observeResource(resourceID string, monitors, connectors int) {
	if i == nil {
		return
	}
	i.monitors.WithLabelValues(resourceID).Set(float64(monitors))
	i.connectors.WithLabelValues(resourceID).Set(float64(connectors))
}

func (i *Instrumentation) observeCycle() {
	if i == nil {
		return
	}
	i.cycles.Inc()
}
