// Package metrics holds the Prometheus collectors for the admin service.
//
// All methods are safe on a nil *Metrics so components can take an optional
// collector without branching.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sophi_admin"

// Save outcomes.
const (
	SaveSaved    = "saved"
	SaveRejected = "rejected"
	SaveFailed   = "failed"
)

// Token request outcomes.
const (
	TokenIssued   = "issued"
	TokenCached   = "cached"
	TokenRejected = "rejected"
	TokenFailed   = "failed"
)

// Metrics is a private registry plus the service collectors.
type Metrics struct {
	registry *prometheus.Registry

	settingsSaves  *prometheus.CounterVec
	notices        *prometheus.CounterVec
	tokenRequests  *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	loginThrottled prometheus.Counter
}

// New creates the collectors on a fresh registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		settingsSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_saves_total",
			Help:      "Settings submissions by outcome.",
		}, []string{"outcome"}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_notices_total",
			Help:      "Validation notices raised while sanitizing settings, by kind.",
		}, []string{"kind"}),
		tokenRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "curator_token_requests_total",
			Help:      "Curator access token lookups by outcome.",
		}, []string{"outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		loginThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_throttled_total",
			Help:      "Login attempts refused because of too many failures.",
		}),
	}
	reg.MustRegister(
		m.settingsSaves,
		m.notices,
		m.tokenRequests,
		m.httpDuration,
		m.loginThrottled,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SettingsSaved counts a settings submission outcome.
func (m *Metrics) SettingsSaved(outcome string) {
	if m == nil {
		return
	}
	m.settingsSaves.WithLabelValues(outcome).Inc()
}

// Notice counts one validation notice.
func (m *Metrics) Notice(kind string) {
	if m == nil {
		return
	}
	m.notices.WithLabelValues(kind).Inc()
}

// TokenRequest counts a curator token lookup outcome.
func (m *Metrics) TokenRequest(outcome string) {
	if m == nil {
		return
	}
	m.tokenRequests.WithLabelValues(outcome).Inc()
}

// LoginThrottled counts a refused login.
func (m *Metrics) LoginThrottled() {
	if m == nil {
		return
	}
	m.loginThrottled.Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
