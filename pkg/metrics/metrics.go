// Package metrics holds the engine's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spotmatch"

type Metrics struct {
	// Commands processed, by command type and outcome (ok, rejected, ignored)
	Commands *prometheus.CounterVec
	// Fills produced, by market
	Fills *prometheus.CounterVec
	// Settlement invariant violations and other faults that indicate a bug
	Faults *prometheus.CounterVec
	// Fire-and-forget publish failures, by sink
	PublishFailures *prometheus.CounterVec
	// Resting orders per market, refreshed after each command
	RestingOrders *prometheus.GaugeVec

	SnapshotDuration prometheus.Histogram
	SnapshotFailures prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the instruments and registers them on reg.
// A nil reg uses a private registry, which keeps tests independent.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "commands_total",
			Help:      "Commands processed by type and outcome",
		}, []string{"type", "outcome"}),
		Fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "fills_total",
			Help:      "Fills produced by market",
		}, []string{"market"}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "faults_total",
			Help:      "Invariant violations detected while processing commands",
		}, []string{"kind"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "publish_failures_total",
			Help:      "Failed reply, event and stream publications",
		}, []string{"sink"}),
		RestingOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "book",
			Name:      "resting_orders",
			Help:      "Resting orders by market",
		}, []string{"market"}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "duration_seconds",
			Help:      "Time to capture and persist a snapshot",
			Buckets:   prometheus.DefBuckets,
		}),
		SnapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "failures_total",
			Help:      "Snapshots that could not be persisted",
		}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.Commands,
		m.Fills,
		m.Faults,
		m.PublishFailures,
		m.RestingOrders,
		m.SnapshotDuration,
		m.SnapshotFailures,
	)
	return m
}

// Handler serves the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
