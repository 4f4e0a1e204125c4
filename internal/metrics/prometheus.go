package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/maptitesalle/mylittlegymcoach/internal/shared"
)

// Collector holds the Prometheus series exported on /metrics.
type Collector struct {
	generationsTotal   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	tokensTotal        *prometheus.CounterVec
	httpRequestsTotal  *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// NewCollector registers the collectors on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		generationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_generations_total",
				Help: "Total number of generator calls",
			},
			[]string{"agent", "status"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coach_generation_duration_seconds",
				Help:    "Generator call duration in seconds",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 180},
			},
			[]string{"agent"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_llm_tokens_total",
				Help: "Tokens consumed by the generator",
			},
			[]string{"model", "kind"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coach_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coach_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Observe records one generator call.
func (c *Collector) Observe(meta shared.GenerationMeta) {
	c.generationsTotal.WithLabelValues(meta.AgentName, meta.Status).Inc()
	c.generationDuration.WithLabelValues(meta.AgentName).Observe(meta.Latency.Seconds())

	model := meta.Usage.ModelOrUnknown()
	c.tokensTotal.WithLabelValues(model, "prompt").Add(float64(meta.Usage.PromptTokens))
	c.tokensTotal.WithLabelValues(model, "completion").Add(float64(meta.Usage.CompletionTokens))
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route, status string, seconds float64) {
	c.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(seconds)
}
