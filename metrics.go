package authservice

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry        *prometheus.Registry
	SignupsTotal    *prometheus.CounterVec
	SigninsTotal    *prometheus.CounterVec
	CodesIssued     *prometheus.CounterVec
	CodesConsumed   *prometheus.CounterVec
	OAuthLogins     *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers collectors on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "auth_service"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		SignupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signups_total",
			Help:      "Accounts created, by provider and role.",
		}, []string{"provider", "role"}),
		SigninsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signins_total",
			Help:      "Sign in attempts by outcome.",
		}, []string{"outcome"}),
		CodesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_issued_total",
			Help:      "One-time codes issued by slot and outcome.",
		}, []string{"slot", "outcome"}),
		CodesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_consumed_total",
			Help:      "One-time code submissions by slot and outcome.",
		}, []string{"slot", "outcome"}),
		OAuthLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_logins_total",
			Help:      "Federated logins by provider and whether an account was created.",
		}, []string{"provider", "created"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}

	registry.MustRegister(
		m.SignupsTotal,
		m.SigninsTotal,
		m.CodesIssued,
		m.CodesConsumed,
		m.OAuthLogins,
		m.RequestDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) signup(provider Provider, role Role) {
	if m != nil {
		m.SignupsTotal.WithLabelValues(string(provider), string(role)).Inc()
	}
}

func (m *Metrics) signin(outcome string) {
	if m != nil {
		m.SigninsTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) codeIssued(slot CodeSlot, err error) {
	if m != nil {
		m.CodesIssued.WithLabelValues(string(slot), outcomeOf(err)).Inc()
	}
}

func (m *Metrics) codeConsumed(slot CodeSlot, err error) {
	if m != nil {
		m.CodesConsumed.WithLabelValues(string(slot), outcomeOf(err)).Inc()
	}
}

func (m *Metrics) oauthLogin(provider Provider, created bool) {
	if m != nil {
		label := "false"
		if created {
			label = "true"
		}
		m.OAuthLogins.WithLabelValues(string(provider), label).Inc()
	}
}

func (m *Metrics) observe(route string, status int, elapsed time.Duration) {
	if m != nil {
		m.RequestDuration.WithLabelValues(route, http.StatusText(status)).Observe(elapsed.Seconds())
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	return string(AsAuthError(err).Kind)
}
