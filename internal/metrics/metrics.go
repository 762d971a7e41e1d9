// Package metrics exposes Prometheus metrics for the scheduler daemon.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	dispatchCycles = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jefe_dispatch_cycles_total",
			Help: "Total number of dispatch poll cycles",
		},
	)

	dispatchDue = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jefe_dispatch_due_workflows",
			Help:    "Number of due workflows per dispatch cycle",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	workflowRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jefe_workflow_runs_total",
			Help: "Total number of workflow orchestrator invocations",
		},
		[]string{"result"},
	)

	workflowRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jefe_workflow_run_duration_seconds",
			Help:    "Orchestrator invocation time in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	workflowsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jefe_workflows",
			Help: "Number of workflows in the schedule table by status",
		},
		[]string{"status"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jefe_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jefe_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDispatchCycle records one poll cycle and how many workflows were due.
func RecordDispatchCycle(due int) {
	dispatchCycles.Inc()
	dispatchDue.Observe(float64(due))
}

// RecordWorkflowRun records one orchestrator invocation.
func RecordWorkflowRun(success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	workflowRuns.WithLabelValues(result).Inc()
	workflowRunDuration.Observe(duration.Seconds())
}

// UpdateWorkflowCounts refreshes the per-status workflow gauges.
func UpdateWorkflowCounts(counts map[string]int) {
	for status, count := range counts {
		workflowsByStatus.WithLabelValues(status).Set(float64(count))
	}
}

// RecordHTTPRequest records one dashboard API request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
