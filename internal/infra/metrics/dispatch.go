package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		dispatchAttemptsTotal,
		dispatchExhaustedTotal,
	)
}

var (
	dispatchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_attempts_total",
			Help: "Upstream attempts made by credential dispatchers.",
		},
		[]string{"dispatcher", "outcome"}, // outcome: 'success', 'failure'
	)

	dispatchExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_exhausted_total",
			Help: "Dispatches that gave up after spending the attempt budget or finding no credentials.",
		},
		[]string{"dispatcher"},
	)
)

func IncDispatchAttempt(dispatcher, outcome string) {
	dispatchAttemptsTotal.WithLabelValues(norm(dispatcher), norm(outcome)).Inc()
}

func IncDispatchExhausted(dispatcher string) {
	dispatchExhaustedTotal.WithLabelValues(norm(dispatcher)).Inc()
}
