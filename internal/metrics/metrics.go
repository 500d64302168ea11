// Package metrics holds the Prometheus collectors for the sync pipeline and
// the HTTP API. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "turnover"

// Metrics groups the service's collectors.
type Metrics struct {
	registry *prometheus.Registry

	syncPasses      *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	feedFetches     *prometheus.CounterVec
	eventsSeen      *prometheus.CounterVec
	jobsCreated     prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	eventsPublished *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, alongside the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		syncPasses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ical_sync_passes_total",
			Help:      "Calendar sync passes by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		syncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ical_sync_duration_seconds",
			Help:      "Duration of calendar sync passes.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		feedFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ical_feed_fetches_total",
			Help:      "Calendar feed fetches by outcome.",
		}, []string{"outcome"}),
		eventsSeen: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ical_events_total",
			Help:      "Checkout events handled by the dedup ledger, by result.",
		}, []string{"result"}),
		jobsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Jobs materialized from calendar checkouts.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events sent to the message broker, by type and outcome.",
		}, []string{"type", "outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveSyncPass records a completed or failed sync pass.
func (m *Metrics) ObserveSyncPass(manual, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	trigger := "scheduled"
	if manual {
		trigger = "manual"
	}
	m.syncPasses.WithLabelValues(trigger, outcome(ok)).Inc()
	m.syncDuration.Observe(d.Seconds())
}

// FeedFetched records one feed download.
func (m *Metrics) FeedFetched(ok bool) {
	if m == nil {
		return
	}
	m.feedFetches.WithLabelValues(outcome(ok)).Inc()
}

// EventHandled records a checkout event's ledger result: "created",
// "skipped", "duplicate" or "failed".
func (m *Metrics) EventHandled(result string) {
	if m == nil {
		return
	}
	m.eventsSeen.WithLabelValues(result).Inc()
	if result == "created" {
		m.jobsCreated.Inc()
	}
}

// EventPublished records a broker publish attempt.
func (m *Metrics) EventPublished(eventType string, ok bool) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType, outcome(ok)).Inc()
}

// ObserveHTTP records a served request.
func (m *Metrics) ObserveHTTP(route, method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, code).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
