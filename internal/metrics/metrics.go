package metrics

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// gate checks, used as the "check" label
const (
	CheckWindow      = "window"
	CheckAPIKey      = "api_key"
	CheckAPIKeyRate  = "api_key_rate"
	CheckAPIKeyUsage = "api_key_usage"
	CheckLedger      = "ledger"
	CheckCredits     = "credits"
)

// decision outcomes, used as the "outcome" label
const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// prometheus collectors for the accounting path. a nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	gateDecisions      *prometheus.CounterVec
	creditsDeducted    *prometheus.CounterVec
	creditsRefunded    *prometheus.CounterVec
	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
}

// creates the collectors on a dedicated registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdgen_gate_decisions_total",
			Help: "Request gate decisions by check and outcome",
		}, []string{"check", "outcome"}),
		creditsDeducted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdgen_credits_deducted_total",
			Help: "Credits deducted by resource type",
		}, []string{"resource"}),
		creditsRefunded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdgen_credits_refunded_total",
			Help: "Credits returned by compensation",
		}, []string{"resource"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdgen_generations_total",
			Help: "Upstream generation calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pdgen_generation_duration_seconds",
			Help:    "Upstream generation latency",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"provider"}),
	}

	registry.MustRegister(
		m.gateDecisions,
		m.creditsDeducted,
		m.creditsRefunded,
		m.generations,
		m.generationDuration,
	)

	return m
}

func (m *Metrics) Decision(check, outcome string) {
	if m == nil {
		return
	}

	m.gateDecisions.WithLabelValues(check, outcome).Inc()
}

func (m *Metrics) CreditsDeducted(resource string, amount int) {
	if m == nil {
		return
	}

	m.creditsDeducted.WithLabelValues(resource).Add(float64(amount))
}

func (m *Metrics) CreditsRefunded(resource string, amount int) {
	if m == nil {
		return
	}

	m.creditsRefunded.WithLabelValues(resource).Add(float64(amount))
}

// records one upstream call; err decides the outcome label
func (m *Metrics) Generation(provider string, started time.Time, err error) {
	if m == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}

	m.generations.WithLabelValues(provider, outcome).Inc()
	m.generationDuration.WithLabelValues(provider).Observe(time.Since(started).Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

// exposes the registry in the text exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// registers GET /metrics
func RegisterRoutes(router *gin.Engine, m *Metrics) {
	router.GET("/metrics", gin.WrapH(m.Handler()))
}
