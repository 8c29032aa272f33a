// Package metrics holds the Prometheus collectors of the executor. They are
// registered in init() and exposed by the HTTP server at /metrics.
//
//   - signal_transitions_total{from,to}       signal status changes
//   - worker_runs_total{worker}               worker passes
//   - worker_signal_failures_total{worker}    per-signal operation failures
//   - worker_run_duration_seconds{worker}     duration of one worker pass
//   - exchange_calls_total{market,op,result}  market connector calls
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignalTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_transitions_total",
			Help: "Signal status transitions",
		},
		[]string{"from", "to"},
	)

	WorkerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Worker passes over the selected signals",
		},
		[]string{"worker"},
	)

	WorkerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_signal_failures_total",
			Help: "Signals whose operation failed during a worker pass",
		},
		[]string{"worker"},
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_run_duration_seconds",
			Help:    "Duration of one worker pass",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"worker"},
	)

	ExchangeCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_calls_total",
			Help: "Market connector calls split by result (ok|error)",
		},
		[]string{"market", "op", "result"},
	)
)

func init() {
	prometheus.MustRegister(SignalTransitions, WorkerRuns, WorkerFailures, WorkerDuration, ExchangeCalls)
}

// ObserveWorker records one finished worker pass.
func ObserveWorker(worker string, started time.Time, failed int) {
	WorkerRuns.WithLabelValues(worker).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(time.Since(started).Seconds())
	if failed > 0 {
		WorkerFailures.WithLabelValues(worker).Add(float64(failed))
	}
}

// ObserveExchange records the result of one market call.
func ObserveExchange(market, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ExchangeCalls.WithLabelValues(market, op, result).Inc()
}
