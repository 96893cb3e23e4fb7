package clients

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	breakerStateGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

func init() {
	prometheus.MustRegister(breakerStateGauge, breakerTransitions)
}

// CircuitBreakerMetricsCallback builds an OnStateChange hook that keeps the
// per-notifier breaker gauge and transition counter current.
func CircuitBreakerMetricsCallback(name string) func(string, CircuitBreakerState, CircuitBreakerState) {
	return func(_ string, from, to CircuitBreakerState) {
		breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		breakerStateGauge.WithLabelValues(name).Set(float64(to))
	}
}
