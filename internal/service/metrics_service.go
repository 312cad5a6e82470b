package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes recorded by ObserveFetch.
const (
	FetchOutcomeSuccess   = "success"
	FetchOutcomeError     = "error"
	FetchOutcomeCancelled = "cancelled"
)

// MetricsService encapsulates Prometheus instrumentation for the grade engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	fetchDuration   *prometheus.HistogramVec
	fetchCancelled  *prometheus.CounterVec
	recomputations  *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	eventsDropped   prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	fetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grade_fetch_duration_seconds",
		Help:    "Duration of grade data fetches by stream",
		Buckets: prometheus.DefBuckets,
	}, []string{"stream", "outcome"})

	fetchCancelled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grade_fetch_cancelled_total",
		Help: "Fetches discarded because a newer selection superseded them",
	}, []string{"stream"})

	recomputations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grade_recomputations_total",
		Help: "Course grade recomputations by trigger",
	}, []string{"trigger"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "grade_sessions_active",
		Help: "Number of open grade sessions",
	})

	eventsDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grade_events_dropped_total",
		Help: "Recompute events dropped because the delivery queue was full",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		fetchDuration, fetchCancelled, recomputations, activeSessions, eventsDropped, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		fetchDuration:   fetchDuration,
		fetchCancelled:  fetchCancelled,
		recomputations:  recomputations,
		activeSessions:  activeSessions,
		eventsDropped:   eventsDropped,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveFetch records a grade data fetch.
func (m *MetricsService) ObserveFetch(stream, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(stream, outcome).Observe(duration.Seconds())
	if outcome == FetchOutcomeCancelled {
		m.fetchCancelled.WithLabelValues(stream).Inc()
	}
}

// RecordRecompute counts a course grade recomputation.
func (m *MetricsService) RecordRecompute(trigger string) {
	if m == nil {
		return
	}
	m.recomputations.WithLabelValues(trigger).Inc()
}

// SetActiveSessions publishes the number of open sessions.
func (m *MetricsService) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}

// RecordDroppedEvent counts a recompute event that could not be queued.
func (m *MetricsService) RecordDroppedEvent() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
