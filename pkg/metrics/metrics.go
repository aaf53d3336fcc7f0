// Package metrics holds the Prometheus collectors for the shortener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Resolution path
	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_resolutions_total",
			Help: "Resolutions by outcome (ok, not_found, inactive, expired, error)",
		},
		[]string{"outcome"},
	)

	ResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shortener_resolve_duration_seconds",
			Help:    "Time spent resolving a shortcode, by cache result",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"cache"},
	)

	// Cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_cache_hits_total",
			Help: "Cache hits by cache (object, resolve)",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_cache_misses_total",
			Help: "Cache misses by cache (object, resolve)",
		},
		[]string{"cache"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_cache_errors_total",
			Help: "Cache backend errors by operation",
		},
		[]string{"operation"},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortener_cache_evictions_total",
			Help: "Entries evicted from the in-process LRU",
		},
	)

	// Allocation
	AllocationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_allocation_attempts_total",
			Help: "Shortcode candidates tried, by generation method",
		},
		[]string{"method"},
	)

	AllocationExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shortener_allocation_exhausted_total",
			Help: "Allocations that ran out of attempts",
		},
	)

	// Click dispatch
	ClickJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_click_jobs_total",
			Help: "Click jobs by result (enqueued, dropped, recorded, failed)",
		},
		[]string{"result"},
	)

	ClickQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shortener_click_queue_depth",
			Help: "Click jobs waiting for a worker",
		},
	)

	// Geo
	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_geo_lookups_total",
			Help: "Geo resolutions by the source that answered (local, city_db, country_db, heuristic, unknown)",
		},
		[]string{"source"},
	)

	// Circuit breakers
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shortener_circuit_breaker_state",
			Help: "Breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_circuit_breaker_transitions_total",
			Help: "Breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shortener_http_requests_total",
			Help: "HTTP requests by route and status class",
		},
		[]string{"route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shortener_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
