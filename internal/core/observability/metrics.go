// Package observability defines the Prometheus metrics exposed by the
// service.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	backendAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_attempts_total",
			Help: "Backend attempt outcomes.",
		},
		[]string{"backend", "outcome"},
	)

	backendLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_latency_seconds",
			Help:    "Latency of backend calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"backend"},
	)

	circuitOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_open",
			Help: "1 when the backend circuit is open, 0 when closed.",
		},
		[]string{"backend"},
	)

	stateOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "state_store_operation_duration_seconds",
			Help:    "Latency of shared state store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	stateOpTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_store_op_total",
			Help: "Shared state store operations by result.",
		},
		[]string{"op", "result"},
	)

	quotaUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_quota_usage",
			Help: "Current usage of a backend quota window.",
		},
		[]string{"backend", "window"},
	)

	resultCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_total",
			Help: "Result cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	indexCollections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spatial_index_collections",
			Help: "Number of collections in the active spatial index.",
		},
	)

	indexLoadedAt = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "spatial_index_loaded_timestamp_seconds",
			Help: "Unix time the active spatial index snapshot was loaded.",
		},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveBackendAttempt(backend, outcome string, durationSeconds float64) {
	backendAttemptsTotal.WithLabelValues(backend, outcome).Inc()
	backendLatencySeconds.WithLabelValues(backend).Observe(durationSeconds)
}

func SetCircuitOpen(backend string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	circuitOpen.WithLabelValues(backend).Set(v)
}

func ObserveStateOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	stateOpTotal.WithLabelValues(op, result).Inc()
	stateOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func SetQuotaUsage(backend, window string, used float64) {
	quotaUsage.WithLabelValues(backend, window).Set(used)
}

func IncResultCacheHit()  { resultCache.WithLabelValues("hit").Inc() }
func IncResultCacheMiss() { resultCache.WithLabelValues("miss").Inc() }

func SetIndexStats(collections int, loadedAtUnix int64) {
	indexCollections.Set(float64(collections))
	indexLoadedAt.Set(float64(loadedAtUnix))
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
