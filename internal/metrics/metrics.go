// Package metrics holds the Prometheus collectors shared by the ingest
// pipeline and the HTTP server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradedvm"

// Ingest outcomes recorded on ListingsProcessed.
const (
	OutcomeStored    = "stored"
	OutcomeRejected  = "rejected"
	OutcomeDuplicate = "duplicate"
	OutcomeMessage   = "trade_message"
	OutcomeError     = "error"
)

// Metrics groups every collector on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	RelayEvents       *prometheus.CounterVec
	ListingsProcessed *prometheus.CounterVec
	ListingRejects    *prometheus.CounterVec
	ArchiveBatches    *prometheus.CounterVec
	ArchivedEvents    prometheus.Counter
	ValidateLatency   prometheus.Histogram
	HTTPLatency       *prometheus.HistogramVec
	HTTPRequests      *prometheus.CounterVec
}

// New creates and registers the collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RelayEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_events_total",
			Help:      "Events received from relays, before dedup.",
		}, []string{"relay", "kind"}),
		ListingsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_events_total",
			Help:      "Events handled by the ingest pipeline by outcome.",
		}, []string{"outcome"}),
		ListingRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listing_rejects_total",
			Help:      "Listing events that failed validation by error code.",
		}, []string{"code"}),
		ArchiveBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_batches_total",
			Help:      "Raw event batches written to blob storage.",
		}, []string{"status"}),
		ArchivedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_events_total",
			Help:      "Raw events written to blob storage.",
		}),
		ValidateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "listing_validate_seconds",
			Help:      "Time spent decoding and validating one listing event.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of API requests by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"method", "route", "status"}),
	}

	m.Registry.MustRegister(
		m.RelayEvents,
		m.ListingsProcessed,
		m.ListingRejects,
		m.ArchiveBatches,
		m.ArchivedEvents,
		m.ValidateLatency,
		m.HTTPLatency,
		m.HTTPRequests,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveRelayEvent counts one event received from relayURL.
func (m *Metrics) ObserveRelayEvent(relayURL string, kind int) {
	if m == nil {
		return
	}
	m.RelayEvents.WithLabelValues(relayURL, strconv.Itoa(kind)).Inc()
}

// ObserveOutcome counts one processed event.
func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ListingsProcessed.WithLabelValues(outcome).Inc()
}

// ObserveReject counts one rejected listing.
func (m *Metrics) ObserveReject(code string) {
	if m == nil {
		return
	}
	m.ListingsProcessed.WithLabelValues(OutcomeRejected).Inc()
	m.ListingRejects.WithLabelValues(code).Inc()
}

// ObserveValidate records how long one validation took.
func (m *Metrics) ObserveValidate(d time.Duration) {
	if m == nil {
		return
	}
	m.ValidateLatency.Observe(d.Seconds())
}

// ObserveArchive records a batch upload of n events.
func (m *Metrics) ObserveArchive(n int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ArchiveBatches.WithLabelValues("error").Inc()
		return
	}
	m.ArchiveBatches.WithLabelValues("ok").Inc()
	m.ArchivedEvents.Add(float64(n))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPLatency.WithLabelValues(method, route).Observe(d.Seconds())
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
