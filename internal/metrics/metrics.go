// Package metrics exposes approval workflow counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the collectors registered on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	reviews       *prometheus.CounterVec
	submissions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	lookups       *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fruittrace",
			Name:      "reviews_total",
			Help:      "Approval request reviews by decision, request kind and outcome.",
		}, []string{"decision", "kind", "outcome"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fruittrace",
			Name:      "submissions_total",
			Help:      "Product change submissions by role, request kind and outcome.",
		}, []string{"role", "kind", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fruittrace",
			Name:      "notifications_total",
			Help:      "Notification deliveries by sink and outcome.",
		}, []string{"sink", "outcome"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fruittrace",
			Name:      "public_lookups_total",
			Help:      "Public product resolutions by outcome.",
		}, []string{"outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fruittrace",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.reviews, m.submissions, m.notifications, m.lookups, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

func (m *Metrics) ObserveReview(decision, kind string, err error) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(decision, kind, outcome(err)).Inc()
}

func (m *Metrics) ObserveSubmission(role, kind string, err error) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(role, kind, outcome(err)).Inc()
}

func (m *Metrics) ObserveNotification(sink string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(sink, outcome(err)).Inc()
}

// ObservePublicLookup records a resolver call; found=false covers both unknown and out-of-stock ids.
func (m *Metrics) ObservePublicLookup(found bool) {
	if m == nil {
		return
	}
	label := "found"
	if !found {
		label = "not_found"
	}
	m.lookups.WithLabelValues(label).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
