package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		aiTokensTotal,
		aiCallsLatencyMs,
		aiFallbacksTotal,
		ttsBytesTotal,
	)
}

var (
	aiTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Sum of total tokens per provider/operation as reported upstream.",
		},
		[]string{"provider", "operation"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds, retries included.",
			Buckets: []float64{50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"provider", "operation", "success"},
	)

	aiFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_fallbacks_total",
			Help: "Times a tutor operation answered with its fallback value.",
		},
		[]string{"operation"},
	)

	ttsBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tts_audio_bytes_total",
			Help: "Bytes of voice audio delivered to users.",
		},
	)
)

// ObserveAICall records latency and reported token usage of one provider call.
func ObserveAICall(provider, operation string, tokens int, latencyMs int64, success bool) {
	aiCallsLatencyMs.WithLabelValues(norm(provider), norm(operation), boolLabel(success)).
		Observe(float64(latencyMs))
	if tokens > 0 {
		aiTokensTotal.WithLabelValues(norm(provider), norm(operation)).Add(float64(tokens))
	}
}

func IncAIFallback(operation string) {
	aiFallbacksTotal.WithLabelValues(norm(operation)).Inc()
}

func AddTTSBytes(n int) {
	ttsBytesTotal.Add(float64(n))
}
