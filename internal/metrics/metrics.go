package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "duckdb_ui"

// Metrics holds the collectors for one server instance. A nil *Metrics is
// valid and records nothing, so components can be built without one.
type Metrics struct {
	registry *prometheus.Registry

	eventWaiters    prometheus.Gauge
	eventsPublished *prometheus.CounterVec
	eventWaits      *prometheus.CounterVec
	queries         *prometheus.CounterVec
	queryDuration   prometheus.Histogram
	querySteps      prometheus.Counter
	watcherPasses   prometheus.Counter
	watcherErrors   prometheus.Counter
	connections     prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		eventWaiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_waiters",
			Help:      "Long-poll requests currently blocked waiting for an event.",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events published to the dispatcher, by event type.",
		}, []string{"kind"}),
		eventWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_waits_total",
			Help:      "Completed event waits, by outcome.",
		}, []string{"outcome"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries run through the executor, by outcome.",
		}, []string{"outcome"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Wall time from submission to the last emitted batch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		querySteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_steps_total",
			Help:      "Engine scheduling steps taken by the executor.",
		}),
		watcherPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_passes_total",
			Help:      "Catalog watcher poll passes.",
		}),
		watcherErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_errors_total",
			Help:      "Catalog watcher passes that ended the watcher with an error.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Named connections held by the registry.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventWaiters,
		m.eventsPublished,
		m.eventWaits,
		m.queries,
		m.queryDuration,
		m.querySteps,
		m.watcherPasses,
		m.watcherErrors,
		m.connections,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SetEventWaiters(n int) {
	if m == nil {
		return
	}
	m.eventWaiters.Set(float64(n))
}

func (m *Metrics) EventPublished(kind string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventWaitDone(outcome string) {
	if m == nil {
		return
	}
	m.eventWaits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) QueryDone(outcome string, elapsed time.Duration, steps int) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.queryDuration.Observe(elapsed.Seconds())
	m.querySteps.Add(float64(steps))
}

func (m *Metrics) WatcherPass() {
	if m == nil {
		return
	}
	m.watcherPasses.Inc()
}

func (m *Metrics) WatcherError() {
	if m == nil {
		return
	}
	m.watcherErrors.Inc()
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}
