// Package metrics defines Prometheus metrics for automation runs.
//
// Metric naming follows Prometheus conventions:
//   - stepflow_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts finished runs by result status.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepflow_runs_total",
			Help: "Total number of automation runs by status.",
		},
		[]string{"status"},
	)

	// RunDurationSeconds is a histogram of run duration.
	RunDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stepflow_run_duration_seconds",
			Help:    "Duration of automation runs in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300},
		},
	)

	// StepsTotal counts executed steps by kind and outcome.
	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepflow_steps_total",
			Help: "Total executed steps by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// LoopIterationsTotal counts loop iterations by outcome.
	LoopIterationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepflow_loop_iterations_total",
			Help: "Total loop iterations by outcome.",
		},
		[]string{"outcome"},
	)

	// TriggersTotal counts trigger firings handed to the engine by type.
	TriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepflow_triggers_total",
			Help: "Total trigger firings by trigger type.",
		},
		[]string{"type"},
	)

	// ActiveRuns is the number of runs currently executing.
	ActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stepflow_active_runs",
			Help: "Number of automation runs currently executing.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RunsTotal,
		RunDurationSeconds,
		StepsTotal,
		LoopIterationsTotal,
		TriggersTotal,
		ActiveRuns,
	)
}

// RecordRunStart marks a run as executing.
func RecordRunStart() {
	ActiveRuns.Inc()
}

// RecordRunComplete records metrics for a finished run.
func RecordRunComplete(status string, duration time.Duration) {
	ActiveRuns.Dec()
	RunsTotal.WithLabelValues(status).Inc()
	RunDurationSeconds.Observe(duration.Seconds())
}

// RecordStep records a single executed step.
func RecordStep(kind, outcome string) {
	StepsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordLoopIteration records a single loop iteration.
func RecordLoopIteration(outcome string) {
	LoopIterationsTotal.WithLabelValues(outcome).Inc()
}

// RecordTrigger records a trigger firing.
func RecordTrigger(triggerType string) {
	TriggersTotal.WithLabelValues(triggerType).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
