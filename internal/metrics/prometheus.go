package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the tracker's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CompletionsTotal   *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	EventsPublished    *prometheus.CounterVec
	PointsAccrued      prometheus.Counter
	LeaderboardSyncs   *prometheus.CounterVec
	RedisOperations    *prometheus.CounterVec
}

// New registers all collectors on reg
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CompletionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "challenge_completions_total",
			Help: "Total number of persisted challenge completions",
		}, []string{"variant", "already_completed"}),
		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "challenge_validation_failures_total",
			Help: "Total number of rejected completion submissions",
		}, []string{"variant"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "completion_events_published_total",
			Help: "Total number of completion events published",
		}, []string{"transport", "status"}),
		PointsAccrued: factory.NewCounter(prometheus.CounterOpts{
			Name: "points_accrued_total",
			Help: "Total number of points credited to users",
		}),
		LeaderboardSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leaderboard_resyncs_total",
			Help: "Total number of leaderboard resync runs",
		}, []string{"status"}),
		RedisOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations",
		}, []string{"operation", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IncCompletion(variant string, alreadyCompleted bool) {
	if m == nil {
		return
	}
	m.CompletionsTotal.WithLabelValues(variant, strconv.FormatBool(alreadyCompleted)).Inc()
}

func (m *Metrics) IncValidationFailure(variant string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(variant).Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) IncEventPublished(transport, status string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(transport, status).Inc()
}

func (m *Metrics) AddPoints(n int) {
	if m == nil {
		return
	}
	m.PointsAccrued.Add(float64(n))
}

func (m *Metrics) IncLeaderboardSync(status string) {
	if m == nil {
		return
	}
	m.LeaderboardSyncs.WithLabelValues(status).Inc()
}

func (m *Metrics) IncRedisOperation(operation, status string) {
	if m == nil {
		return
	}
	m.RedisOperations.WithLabelValues(operation, status).Inc()
}
