// Package metrics defines the Prometheus collectors the HTTP server updates
// and exports on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	GenerateRequests *prometheus.CounterVec
	GeneratedTokens  *prometheus.CounterVec
	GenerateSeconds  *prometheus.HistogramVec
	ParityRuns       *prometheus.CounterVec
	ParityMaxAbsDiff prometheus.Gauge
	RateLimited      prometheus.Counter
}

// New registers every collector with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		GenerateRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mingpt_generate_requests_total",
			Help: "Completion requests served, by model.",
		}, []string{"model"}),
		GeneratedTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mingpt_generated_tokens_total",
			Help: "Tokens produced by generation, by model.",
		}, []string{"model"}),
		GenerateSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mingpt_generate_seconds",
			Help:    "Wall time of a whole completion request's generation, by model.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"model"}),
		ParityRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mingpt_parity_runs_total",
			Help: "Parity runs by result (ok, logits, tokens, text, error).",
		}, []string{"result"}),
		ParityMaxAbsDiff: f.NewGauge(prometheus.GaugeOpts{
			Name: "mingpt_parity_max_abs_diff",
			Help: "Largest absolute logit difference seen in the last parity run.",
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "mingpt_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}
}

// ObserveGenerate records one completion of n new tokens.
func (m *Metrics) ObserveGenerate(model string, n int, elapsed time.Duration) {
	m.GenerateRequests.WithLabelValues(model).Inc()
	m.GeneratedTokens.WithLabelValues(model).Add(float64(n))
	m.GenerateSeconds.WithLabelValues(model).Observe(elapsed.Seconds())
}

// ObserveParity records a parity outcome. result is "ok" or the failing stage.
func (m *Metrics) ObserveParity(result string, maxAbs float64) {
	m.ParityRuns.WithLabelValues(result).Inc()
	m.ParityMaxAbsDiff.Set(maxAbs)
}
