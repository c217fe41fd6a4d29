package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Business metrics
	RequestsCreated    prometheus.Counter
	ApplicationsTotal  prometheus.Counter
	AssignmentsCreated prometheus.Counter
	ReviewsCreated     prometheus.Counter
	AcceptConflicts    prometheus.Counter

	// Sweep metrics
	SweepRuns         *prometheus.CounterVec
	SweepRowsAffected *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

var metrics *Metrics

// Init initializes all Prometheus metrics
func Init() *Metrics {
	if metrics != nil {
		return metrics
	}

	metrics = &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		RequestsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "care_requests_created_total",
				Help: "Total number of care requests created",
			},
		),
		ApplicationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "applications_created_total",
				Help: "Total number of applications submitted",
			},
		),
		AssignmentsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "assignments_created_total",
				Help: "Total number of helpers matched to requests",
			},
		),
		ReviewsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reviews_created_total",
				Help: "Total number of reviews recorded",
			},
		),
		AcceptConflicts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "accept_conflicts_total",
				Help: "Total number of accept attempts lost to a concurrent accept",
			},
		),

		SweepRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_runs_total",
				Help: "Total number of background sweep runs",
			},
			[]string{"job"},
		),
		SweepRowsAffected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_rows_affected_total",
				Help: "Total rows transitioned by background sweeps",
			},
			[]string{"job"},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total cache hits",
			},
			[]string{"cache"},
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total cache misses",
			},
			[]string{"cache"},
		),
	}

	return metrics
}

// Get returns the initialized metrics, initializing them if needed
func Get() *Metrics {
	return Init()
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware records HTTP metrics for each request
func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()

		c.Next()

		m.HTTPRequestsInFlight.Dec()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
