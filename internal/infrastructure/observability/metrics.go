// Package observability wires Prometheus metrics and OpenTelemetry tracing.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service. Each instance owns
// its registry, so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Business metrics
	RelationChanges *prometheus.CounterVec
	ReviewChanges   *prometheus.CounterVec
	ReviewRatings   prometheus.Histogram
	EntitiesCreated *prometheus.CounterVec

	// Reconciliation
	ReconcileChecked     prometheus.Counter
	ReconcileCorrections prometheus.Counter

	// Event bus
	EventsPublished *prometheus.CounterVec
	EventHandlers   *prometheus.HistogramVec
	EventFailures   *prometheus.CounterVec

	// Cache
	CacheRequests *prometheus.CounterVec

	// Scheduler
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics under the given namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		RelationChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relation_changes_total",
			Help:      "Follow and like edges created or removed",
		}, []string{"relation", "family", "change"}),

		ReviewChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_changes_total",
			Help:      "Reviews created or deleted",
		}, []string{"change"}),

		ReviewRatings: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "review_rating",
			Help:      "Ratings submitted with new reviews",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),

		EntitiesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_created_total",
			Help:      "Accounts and profiles created, by entity type",
		}, []string{"entity_type"}),

		ReconcileChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_checked_total",
			Help:      "Entities checked by counter reconciliation",
		}),

		ReconcileCorrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_corrections_total",
			Help:      "Counter values rewritten by reconciliation",
		}),

		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published on the bus",
		}, []string{"event_type"}),

		EventHandlers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_handler_duration_seconds",
			Help:      "Event handler execution time",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),

		EventFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_failures_total",
			Help:      "Event handler executions that returned an error",
		}, []string{"event_type"}),

		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Relation cache lookups by result",
		}, []string{"result"}),

		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by status",
		}, []string{"job", "status"}),

		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.RelationChanges,
		m.ReviewChanges,
		m.ReviewRatings,
		m.EntitiesCreated,
		m.ReconcileChecked,
		m.ReconcileCorrections,
		m.EventsPublished,
		m.EventHandlers,
		m.EventFailures,
		m.CacheRequests,
		m.JobRuns,
		m.JobDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RelationChanged implements eventhandler.GraphMetrics.
func (m *Metrics) RelationChanged(relation, family string, active bool) {
	change := "removed"
	if active {
		change = "created"
	}
	m.RelationChanges.WithLabelValues(relation, family, change).Inc()
}

// ReviewChanged implements eventhandler.GraphMetrics.
func (m *Metrics) ReviewChanged(created bool, rating int, _ float64) {
	if !created {
		m.ReviewChanges.WithLabelValues("deleted").Inc()
		return
	}
	m.ReviewChanges.WithLabelValues("created").Inc()
	m.ReviewRatings.Observe(float64(rating))
}

// EntityCreated implements eventhandler.GraphMetrics.
func (m *Metrics) EntityCreated(kind string) {
	m.EntitiesCreated.WithLabelValues(kind).Inc()
}

// CountersReconciled implements eventhandler.GraphMetrics.
func (m *Metrics) CountersReconciled(checked, corrections int) {
	m.ReconcileChecked.Add(float64(checked))
	m.ReconcileCorrections.Add(float64(corrections))
}

// EventPublished implements messaging.Observer.
func (m *Metrics) EventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// EventHandled implements messaging.Observer.
func (m *Metrics) EventHandled(eventType string, duration time.Duration, err error) {
	m.EventHandlers.WithLabelValues(eventType).Observe(duration.Seconds())
	if err != nil {
		m.EventFailures.WithLabelValues(eventType).Inc()
	}
}

// CacheResult records a relation cache lookup: "hit", "miss" or "error".
func (m *Metrics) CacheResult(result string) {
	m.CacheRequests.WithLabelValues(result).Inc()
}

// JobFinished records a scheduler run.
func (m *Metrics) JobFinished(job string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(duration.Seconds())
}
