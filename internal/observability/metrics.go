package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the gateway.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	providerAttempts *prometheus.CounterVec
	creditsCharged   *prometheus.CounterVec
	streamFragments  prometheus.Counter
}

// NewMetrics initializes the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loomstudio_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loomstudio_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loomstudio_provider_attempts_total",
		Help: "Upstream provider call attempts by operation and outcome.",
	}, []string{"operation", "outcome"})
	charged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loomstudio_credits_charged_total",
		Help: "Credits debited from account balances, by category.",
	}, []string{"category"})
	fragments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loomstudio_stream_fragments_total",
		Help: "Chat stream fragments relayed to callers.",
	})
	registry.MustRegister(requests, duration, attempts, charged, fragments)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		providerAttempts: attempts,
		creditsCharged:   charged,
		streamFragments:  fragments,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveProviderAttempt counts one provider call attempt.
func (m *Metrics) ObserveProviderAttempt(operation, outcome string) {
	if m == nil {
		return
	}
	m.providerAttempts.WithLabelValues(operation, outcome).Inc()
}

// ObserveCreditsCharged accumulates debited credits by category.
func (m *Metrics) ObserveCreditsCharged(category string, credits float64) {
	if m == nil {
		return
	}
	m.creditsCharged.WithLabelValues(category).Add(credits)
}

// ObserveStreamFragment counts one relayed chat fragment.
func (m *Metrics) ObserveStreamFragment() {
	if m == nil {
		return
	}
	m.streamFragments.Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the wrapped writer. The chat relay streams through this
// middleware and stalls without it.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
