// Package ops exposes process health and Prometheus metrics over HTTP.
package ops

import (
	"time"

	"randomwiki/pkg/relay"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "randomwiki"

// Metrics records bot activity on a private Prometheus registry.
//
// It satisfies the store cache observer, the wikipedia request observer, the
// kernel delivery observer and the wiki command observer structurally.
type Metrics struct {
	registry *prometheus.Registry

	cacheEvents      *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	eventsDropped    *prometheus.CounterVec
	eventsHandled    *prometheus.CounterVec
	handlerLatency   *prometheus.HistogramVec
	commandsHandled  *prometheus.CounterVec
}

// NewMetrics creates metrics bound to a fresh registry that also carries the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		cacheEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "content_cache_events_total",
				Help:      "Content cache lookups by outcome",
			},
			[]string{"outcome"},
		),
		upstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "upstream_requests_total",
				Help:      "Wikipedia API requests by operation and status",
			},
			[]string{"operation", "status"},
		),
		upstreamLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Duration of Wikipedia API requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		eventsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_dropped_total",
				Help:      "Events dropped by subscription backpressure",
			},
			[]string{"subscription", "kind"},
		),
		eventsHandled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_handled_total",
				Help:      "Events delivered to subscription handlers by status",
			},
			[]string{"subscription", "kind", "status"},
		),
		handlerLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "handler_duration_seconds",
				Help:      "Duration of subscription handlers in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"subscription"},
		),
		commandsHandled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commands_handled_total",
				Help:      "Bot commands handled by name and status",
			},
			[]string{"command", "status"},
		),
	}
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// CacheHit records a fresh cache entry served without fetching.
func (m *Metrics) CacheHit() { m.cacheEvents.WithLabelValues("hit").Inc() }

// CacheMiss records a lookup that required a fetch.
func (m *Metrics) CacheMiss() { m.cacheEvents.WithLabelValues("miss").Inc() }

// CacheFill records a fetched body stored in the cache.
func (m *Metrics) CacheFill() { m.cacheEvents.WithLabelValues("fill").Inc() }

// CacheFetchFailed records a fetch that failed and was not stored.
func (m *Metrics) CacheFetchFailed() { m.cacheEvents.WithLabelValues("fetch_failed").Inc() }

// ObserveRequest records one upstream content API request.
func (m *Metrics) ObserveRequest(operation string, elapsed time.Duration, err error) {
	m.upstreamRequests.WithLabelValues(operation, statusLabel(err)).Inc()
	m.upstreamLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// EventDropped records one event discarded by backpressure.
func (m *Metrics) EventDropped(subscription string, kind relay.EventKind) {
	m.eventsDropped.WithLabelValues(subscription, string(kind)).Inc()
}

// EventHandled records one completed handler invocation.
func (m *Metrics) EventHandled(subscription string, kind relay.EventKind, elapsed time.Duration, err error) {
	m.eventsHandled.WithLabelValues(subscription, string(kind), statusLabel(err)).Inc()
	m.handlerLatency.WithLabelValues(subscription).Observe(elapsed.Seconds())
}

// ObserveCommand records one handled bot command.
func (m *Metrics) ObserveCommand(command string, err error) {
	m.commandsHandled.WithLabelValues(command, statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}

	return "ok"
}
