package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpDurationBuckets       = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	transitionDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
	bodySizeBuckets           = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Workflow metrics
	TransitionsTotal      *prometheus.CounterVec
	TransitionDuration    *prometheus.HistogramVec
	UploadsTotal          *prometheus.CounterVec
	MissingReviewersTotal *prometheus.CounterVec

	// Notification metrics
	NotificationsTotal *prometheus.CounterVec
	EmailsInFlight     prometheus.Gauge

	// Cache metrics
	CapabilityCacheHitsTotal   prometheus.Counter
	CapabilityCacheMissesTotal prometheus.Counter
	IdempotencyReplaysTotal    prometheus.Counter
}

// InitMetrics creates the instruments and registers them with reg.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	httpLabels := []string{"method", "route"}

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "syllabuksu_http_requests_total",
			Help: "HTTP requests served, by route pattern and status code.",
		}, append(httpLabels, "code")),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "syllabuksu_http_request_duration_seconds",
			Help:    "Time from first byte read to handler return.",
			Buckets: httpDurationBuckets,
		}, httpLabels),
		HTTPRequestSizeBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "syllabuksu_http_request_size_bytes",
			Help:    "Declared request body sizes.",
			Buckets: bodySizeBuckets,
		}, httpLabels),
		HTTPResponseSizeBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "syllabuksu_http_response_size_bytes",
			Help:    "Response body bytes written.",
			Buckets: bodySizeBuckets,
		}, httpLabels),

		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "syllabuksu_transitions_total",
			Help: "Syllabus transition attempts by action and result.",
		}, []string{"action", "result"}),
		TransitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "syllabuksu_transition_duration_seconds",
			Help:    "Syllabus transition latency, including persistence.",
			Buckets: transitionDurationBuckets,
		}, []string{"action"}),
		UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "syllabuksu_uploads_total",
			Help: "Syllabus uploads by mode (draft or submit).",
		}, []string{"mode"}),
		MissingReviewersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "syllabuksu_missing_reviewer_total",
			Help: "Transitions for which no active next reviewer could be found.",
		}, []string{"role"}),

		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "syllabuksu_notifications_total",
			Help: "Notification deliveries by channel and result.",
		}, []string{"channel", "result"}),
		EmailsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "syllabuksu_emails_in_flight",
			Help: "Notification emails queued for background delivery and not yet finished.",
		}),

		CapabilityCacheHitsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "syllabuksu_capability_cache_hits_total",
			Help: "Capability lookups answered from cache.",
		}),
		CapabilityCacheMissesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "syllabuksu_capability_cache_misses_total",
			Help: "Capability lookups that evaluated the policy.",
		}),
		IdempotencyReplaysTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "syllabuksu_idempotency_replays_total",
			Help: "Transition requests answered from the idempotency store.",
		}),
	}
}

// RecordHTTPRequest records one served request under its route pattern.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, route).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, route).Observe(float64(respSize))
}

// RecordTransition records the result of a transition attempt. result is
// "ok" or a lower-cased error code.
func (m *Metrics) RecordTransition(action, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(action, result).Inc()
	m.TransitionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordUpload records a syllabus upload.
func (m *Metrics) RecordUpload(mode string) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(mode).Inc()
}

// RecordMissingReviewer records a transition whose next reviewer could not
// be resolved.
func (m *Metrics) RecordMissingReviewer(role string) {
	if m == nil {
		return
	}
	m.MissingReviewersTotal.WithLabelValues(role).Inc()
}

// RecordNotification records a notification delivery attempt.
func (m *Metrics) RecordNotification(channel, result string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(channel, result).Inc()
}

// EmailQueued marks an email handed to a background sender.
func (m *Metrics) EmailQueued() {
	if m == nil {
		return
	}
	m.EmailsInFlight.Inc()
}

// EmailDone marks a background send as finished, successful or not.
func (m *Metrics) EmailDone() {
	if m == nil {
		return
	}
	m.EmailsInFlight.Dec()
}

// RecordCapabilityCacheHit records a capability cache hit.
func (m *Metrics) RecordCapabilityCacheHit() {
	if m == nil {
		return
	}
	m.CapabilityCacheHitsTotal.Inc()
}

// RecordCapabilityCacheMiss records a capability cache miss.
func (m *Metrics) RecordCapabilityCacheMiss() {
	if m == nil {
		return
	}
	m.CapabilityCacheMissesTotal.Inc()
}

// RecordIdempotencyReplay records a response served from the idempotency
// store.
func (m *Metrics) RecordIdempotencyReplay() {
	if m == nil {
		return
	}
	m.IdempotencyReplaysTotal.Inc()
}

// unmatchedRoute labels requests that matched no route, so probes for
// arbitrary paths cannot grow the label set.
const unmatchedRoute = "unmatched"

// MetricsMiddleware records request count, latency and sizes labelled by the
// chi route pattern.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		cw := &countingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(cw, r)

		// The pattern is only complete once routing has finished.
		m.RecordHTTPRequest(r.Method, routePattern(r), cw.status, time.Since(start),
			int(max(r.ContentLength, 0)), cw.bytes)
	})
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := strings.TrimSuffix(strings.Join(rc.RoutePatterns, ""), "/*"); p != "" {
			return p
		}
	}
	return unmatchedRoute
}

// countingWriter captures the first status code and the body size.
type countingWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	started bool
}

func (w *countingWriter) WriteHeader(code int) {
	if !w.started {
		w.status, w.started = code, true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *countingWriter) Write(b []byte) (int, error) {
	w.started = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
