package pkg

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/convergerun/converge/pkg/common"
)

var (
	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converge_steps_total",
			Help: "Executed plan steps by task type and outcome.",
		},
		[]string{"type", "outcome"},
	)
	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "converge_step_duration_seconds",
			Help:    "Wall-clock duration of plan steps.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)
	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converge_step_retries_total",
			Help: "Transient-failure retries by task type.",
		},
		[]string{"type"},
	)
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "converge_runs_total",
			Help: "Completed runs by result.",
		},
		[]string{"result"},
	)
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "converge_run_duration_seconds",
			Help:    "Wall-clock duration of full runs.",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
)

func init() {
	prometheus.MustRegister(stepsTotal, stepDuration, retriesTotal, runsTotal, runDuration)
}

func recordStepMetrics(taskType string, outcome Outcome, d time.Duration) {
	stepsTotal.WithLabelValues(taskType, string(outcome)).Inc()
	stepDuration.WithLabelValues(taskType).Observe(d.Seconds())
}

func recordRetryMetric(taskType string) {
	retriesTotal.WithLabelValues(taskType).Inc()
}

func recordRunMetrics(succeeded bool, d time.Duration) {
	result := "success"
	if !succeeded {
		result = "failure"
	}
	runsTotal.WithLabelValues(result).Inc()
	runDuration.Observe(d.Seconds())
}

// ServeMetrics exposes the Prometheus registry over HTTP. It blocks, so run
// it in its own goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	common.LogInfo("Serving metrics", map[string]interface{}{"addr": addr})
	return http.ListenAndServe(addr, mux)
}
