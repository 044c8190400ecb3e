package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of upstream requests by provider, operation and outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)
	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)

	HumanizePathTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "humanize_outcomes_total",
			Help: "Humanize results by pipeline path (accept, enhance, fallback)",
		},
		[]string{"path"},
	)
	DetectCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detect_cache_total",
			Help: "Detection cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)
	CircuitBreakerStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)
)

var initOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(UpstreamRequestsTotal)
		prometheus.MustRegister(UpstreamRequestDuration)
		prometheus.MustRegister(HumanizePathTotal)
		prometheus.MustRegister(DetectCacheTotal)
		prometheus.MustRegister(CircuitBreakerStateGauge)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveUpstream records one upstream call. outcome is a short label such as
// "ok", "error", "timeout" or an HTTP status class.
func ObserveUpstream(provider, operation, outcome string, d time.Duration) {
	UpstreamRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	UpstreamRequestDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
}

// RecordHumanizePath counts a humanize result by pipeline path.
func RecordHumanizePath(path string) {
	HumanizePathTotal.WithLabelValues(path).Inc()
}

// RecordDetectCache counts a detection cache lookup.
func RecordDetectCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DetectCacheTotal.WithLabelValues(result).Inc()
}

// RecordCircuitBreakerState publishes the state of a named breaker.
func RecordCircuitBreakerState(name string, state CircuitBreakerState) {
	CircuitBreakerStateGauge.WithLabelValues(name).Set(float64(state))
}
