package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/babyshower-web/internal/version"
)

// rate limit decision labels
const (
	ResultAllowed  = "allowed"
	ResultDenied   = "denied"
	ResultFailOpen = "fail_open"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	ratelimitDecisions     *prometheus.CounterVec
	ratelimitStoreErrors   prometheus.Counter

	identityVerifyFailures prometheus.Counter
	validationFailures     *prometheus.CounterVec
	notificationsPublished *prometheus.CounterVec
	notificationsDelivered *prometheus.CounterVec
	galleryPresigned       prometheus.Counter

	errorsTotal *prometheus.CounterVec

	profilingActive prometheus.Gauge
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 52428800},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times an identity first reached its window capacity",
		}),
		ratelimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limit decisions by result (allowed, denied, fail_open)",
		}, []string{"result"}),
		ratelimitStoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ratelimit_store_errors_total",
			Help: "Counter store failures; each one let a request through unchecked",
		}),
		identityVerifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "identity_verify_failures_total",
			Help: "Bearer tokens that failed verification (request fell back to client address)",
		}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "validation_failures_total",
			Help: "Request payloads rejected by validation, by route",
		}, []string{"route"}),
		notificationsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notification events published by type and result",
		}, []string{"type", "result"}),
		notificationsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Notification events forwarded to the webhook by result",
		}, []string{"result"}),
		galleryPresigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gallery_presigned_total",
			Help: "Presigned gallery upload URLs issued",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.ratelimitDecisions,
		m.ratelimitStoreErrors,
		m.identityVerifyFailures,
		m.validationFailures,
		m.notificationsPublished,
		m.notificationsDelivered,
		m.galleryPresigned,
		m.errorsTotal,
		m.profilingActive,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

// ObserveRateLimitDecision counts one limiter decision. failOpen wins over
// allowed since fail-open decisions are always allowed.
func (m *ServerMetrics) ObserveRateLimitDecision(allowed, failOpen bool) {
	switch {
	case failOpen:
		m.ratelimitDecisions.WithLabelValues(ResultFailOpen).Inc()
	case allowed:
		m.ratelimitDecisions.WithLabelValues(ResultAllowed).Inc()
	default:
		m.ratelimitDecisions.WithLabelValues(ResultDenied).Inc()
	}
}

func (m *ServerMetrics) IncRateLimitStoreError() {
	m.ratelimitStoreErrors.Inc()
}

func (m *ServerMetrics) IncIdentityVerifyFailure() {
	m.identityVerifyFailures.Inc()
}

func (m *ServerMetrics) IncValidationFailure(route string) {
	m.validationFailures.WithLabelValues(route).Inc()
}

func (m *ServerMetrics) IncNotificationPublished(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notificationsPublished.WithLabelValues(eventType, result).Inc()
}

func (m *ServerMetrics) IncNotificationDelivered(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notificationsDelivered.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) IncGalleryPresigned() {
	m.galleryPresigned.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}
