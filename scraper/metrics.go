package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the marketplace monitor.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	RateLimitWait     prometheus.Histogram
	ItemsScannedTotal prometheus.Counter
	MatchesFoundTotal prometheus.Counter
	ReleaseLookups    *prometheus.CounterVec
	RetriesTotal      *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sellerwatch_requests_total",
			Help: "Total marketplace API requests issued.",
		},
		[]string{"endpoint"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sellerwatch_request_duration_seconds",
			Help:    "Marketplace API request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	rateLimitWait := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sellerwatch_rate_limit_wait_seconds",
			Help:    "Time spent waiting for a rate limiter token.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5},
		},
	)
	itemsScanned := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sellerwatch_items_scanned_total",
			Help: "Total number of inventory listings fetched.",
		},
	)
	matchesFound := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sellerwatch_matches_found_total",
			Help: "Total number of new wishlist matches recorded.",
		},
	)
	releaseLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sellerwatch_release_lookups_total",
			Help: "Release to master resolutions by source.",
		},
		[]string{"source"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sellerwatch_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
		[]string{"policy"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sellerwatch_errors_total",
			Help: "Total number of request errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, rateLimitWait, itemsScanned, matchesFound, releaseLookups, retries, errorsTotal)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		RateLimitWait:     rateLimitWait,
		ItemsScannedTotal: itemsScanned,
		MatchesFoundTotal: matchesFound,
		ReleaseLookups:    releaseLookups,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(endpoint string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(endpoint).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// ObserveWait records how long a caller waited on the rate limiter.
func (m *Metrics) ObserveWait(d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.Observe(d.Seconds())
}

// AddItems increments the scanned listings counter.
func (m *Metrics) AddItems(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsScannedTotal.Add(float64(n))
}

// AddMatches increments the new matches counter.
func (m *Metrics) AddMatches(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MatchesFoundTotal.Add(float64(n))
}

// IncLookup records how a release id was resolved.
func (m *Metrics) IncLookup(source string) {
	if m == nil {
		return
	}
	m.ReleaseLookups.WithLabelValues(source).Inc()
}

// IncRetries increments the retries counter for a policy.
func (m *Metrics) IncRetries(policy string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(policy).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
