package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	stageDurationSeconds  *prometheus.HistogramVec
	stageFailuresTotal    *prometheus.CounterVec
	queuePublishesTotal   *prometheus.CounterVec
	queueRedeliveryTotal  *prometheus.CounterVec
	submissionsFinalTotal *prometheus.CounterVec
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
)

// RegisterMetrics initialises the Prometheus collectors for the evaluation
// pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		stageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gradeflow_stage_duration_seconds",
			Help:    "Duration distribution of pipeline stages per submission.",
			Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
		}, []string{"stage"})

		stageFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_stage_failures_total",
			Help: "Total number of pipeline stage failures.",
		}, []string{"stage", "terminal"})

		queuePublishesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_queue_publishes_total",
			Help: "Total number of messages published to the pipeline queue.",
		}, []string{"subject"})

		queueRedeliveryTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_queue_redeliveries_total",
			Help: "Total number of retry republishes to the pipeline queue.",
		}, []string{"subject"})

		submissionsFinalTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_submissions_finalized_total",
			Help: "Total number of submissions reaching a terminal state.",
		}, []string{"status"})

		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gradeflow_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gradeflow_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		prometheus.MustRegister(
			stageDurationSeconds,
			stageFailuresTotal,
			queuePublishesTotal,
			queueRedeliveryTotal,
			submissionsFinalTotal,
			httpRequestsTotal,
			httpLatencySeconds,
		)
	})
}

// StageDuration exposes the stage duration histogram.
func StageDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return stageDurationSeconds
}

// StageFailures exposes the stage failure counter.
func StageFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return stageFailuresTotal
}

// QueuePublishes exposes the publish counter.
func QueuePublishes() *prometheus.CounterVec {
	RegisterMetrics()
	return queuePublishesTotal
}

// QueueRedeliveries exposes the redelivery counter.
func QueueRedeliveries() *prometheus.CounterVec {
	RegisterMetrics()
	return queueRedeliveryTotal
}

// SubmissionsFinalized exposes the terminal-state counter.
func SubmissionsFinalized() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsFinalTotal
}

// HTTPRequests exposes the API request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the API latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}
