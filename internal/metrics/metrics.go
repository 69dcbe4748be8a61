package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	downstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "composite_downstream_request_duration_seconds",
			Help:    "Latency of calls to product, recommendation and review services",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "host", "outcome"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "composite_circuit_breaker_state",
			Help: "Circuit breaker state per capability (0=closed, 1=open, 2=half_open)",
		},
		[]string{"capability"},
	)

	breakerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composite_circuit_breaker_calls_total",
			Help: "Calls seen by the circuit breaker by outcome",
		},
		[]string{"capability", "outcome"},
	)

	retryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composite_retry_attempts_total",
			Help: "Retry attempts made after a failed call",
		},
		[]string{"capability"},
	)

	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composite_fallbacks_total",
			Help: "Fallback invocations while the breaker is open",
		},
		[]string{"capability", "result"},
	)

	dependentDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composite_dependent_degraded_total",
			Help: "Dependent list calls that degraded to an empty result",
		},
		[]string{"capability"},
	)

	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composite_events_published_total",
			Help: "Events handed to the messaging substrate",
		},
		[]string{"binding", "type", "result"},
	)

	publishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "composite_event_publish_duration_seconds",
			Help:    "Time from publish request to broker hand-off",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"binding"},
	)

	eventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "composite_events_consumed_total",
			Help: "Events processed by the consumer by result",
		},
		[]string{"binding", "result"},
	)
)

func RecordDownstreamRequest(method, host, outcome string, d time.Duration) {
	downstreamRequestDuration.WithLabelValues(method, host, outcome).Observe(d.Seconds())
}

func SetBreakerState(capability string, state int) {
	breakerState.WithLabelValues(capability).Set(float64(state))
}

func RecordBreakerCall(capability, outcome string) {
	breakerCallsTotal.WithLabelValues(capability, outcome).Inc()
}

func RecordRetryAttempt(capability string) {
	retryAttemptsTotal.WithLabelValues(capability).Inc()
}

func RecordFallback(capability, result string) {
	fallbacksTotal.WithLabelValues(capability, result).Inc()
}

func RecordDependentDegraded(capability string) {
	dependentDegradedTotal.WithLabelValues(capability).Inc()
}

func RecordPublish(binding, eventType, result string, d time.Duration) {
	eventsPublishedTotal.WithLabelValues(binding, eventType, result).Inc()
	publishDuration.WithLabelValues(binding).Observe(d.Seconds())
}

func RecordConsumed(binding, result string) {
	eventsConsumedTotal.WithLabelValues(binding, result).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
