// Package metrics exposes prometheus collectors for polling, action dispatch
// and websocket clients.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. The zero value is not usable; use New.
type Metrics struct {
	registry *prometheus.Registry

	pollDuration *prometheus.HistogramVec
	pollFailures *prometheus.CounterVec
	actions      *prometheus.CounterVec
	actionTime   *prometheus.HistogramVec
	wsClients    prometheus.Gauge
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marginterm_poll_duration_seconds",
			Help:    "Duration of polling cycles per job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		pollFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marginterm_poll_failures_total",
			Help: "Polling cycles that returned an error, per job.",
		}, []string{"job"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marginterm_actions_total",
			Help: "Dispatched actions by kind and terminal outcome.",
		}, []string{"kind", "outcome"}),
		actionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marginterm_action_duration_seconds",
			Help:    "Time from dispatch to terminal outcome.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"kind"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marginterm_ws_clients",
			Help: "Connected websocket clients.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.pollDuration,
		m.pollFailures,
		m.actions,
		m.actionTime,
		m.wsClients,
	)
	return m
}

// ObservePoll records one polling cycle.
func (m *Metrics) ObservePoll(job string, d time.Duration, err error) {
	m.pollDuration.WithLabelValues(job).Observe(d.Seconds())
	if err != nil {
		m.pollFailures.WithLabelValues(job).Inc()
	}
}

// ObserveAction records a terminal action outcome.
func (m *Metrics) ObserveAction(kind, outcome string, d time.Duration) {
	m.actions.WithLabelValues(kind, outcome).Inc()
	m.actionTime.WithLabelValues(kind).Observe(d.Seconds())
}

// ClientConnected increments the websocket client gauge.
func (m *Metrics) ClientConnected() { m.wsClients.Inc() }

// ClientDisconnected decrements the websocket client gauge.
func (m *Metrics) ClientDisconnected() { m.wsClients.Dec() }

// WatchBusDrops exports a counter read from dropped, the number of bus
// payloads discarded for slow subscribers.
func (m *Metrics) WatchBusDrops(dropped func() int64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "marginterm_bus_dropped_total",
		Help: "Signal bus payloads dropped for slow subscribers.",
	}, func() float64 { return float64(dropped()) }))
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
