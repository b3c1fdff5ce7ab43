package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"adlign-personalization-layer/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "adlign"

// Metrics holds the service's prometheus collectors
type Metrics struct {
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	rateLimited  prometheus.Counter
	shopifyCalls *prometheus.CounterVec
	shopifyTime  *prometheus.HistogramVec
	scanJobs     *prometheus.CounterVec
	webhooks     *prometheus.CounterVec
}

// New registers every collector on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the per-IP rate limiter.",
		}),
		shopifyCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shopify_calls_total",
			Help:      "Shopify Admin API calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		shopifyTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "shopify_call_duration_seconds",
			Help:      "Shopify Admin API latency including retries.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		scanJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_jobs_total",
			Help:      "Background scan jobs by final status.",
		}, []string{"status"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Shopify webhook deliveries by topic and result.",
		}, []string{"topic", "result"}),
	}
	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.rateLimited,
		m.shopifyCalls,
		m.shopifyTime,
		m.scanJobs,
		m.webhooks,
	)
	return m
}

// Middleware records request counts and latency by chi route pattern, so
// path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RateLimited counts one rejected request
func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}

// ObserveShopifyCall implements shopify.CallObserver
func (m *Metrics) ObserveShopifyCall(op string, err error, elapsed time.Duration) {
	m.shopifyCalls.WithLabelValues(op, outcome(err)).Inc()
	m.shopifyTime.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Publish counts scan jobs that reached a final status
func (m *Metrics) Publish(job *domain.ScanJob) {
	if job.Active() {
		return
	}
	m.scanJobs.WithLabelValues(string(job.Status)).Inc()
}

// ObserveWebhook counts one delivery
func (m *Metrics) ObserveWebhook(topic string, err error) {
	m.webhooks.WithLabelValues(topic, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidSignature):
		return "invalid_signature"
	default:
		return "error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps server-sent event streams working through the recorder
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
