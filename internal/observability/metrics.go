package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpRequestsTotal      *prometheus.CounterVec
	httpLatencySeconds     *prometheus.HistogramVec
	httpErrorsTotal        *prometheus.CounterVec
	storageOperationsTotal *prometheus.CounterVec
	storageLatencySeconds  *prometheus.HistogramVec
	submissionOutcomes     *prometheus.CounterVec
	deletionFilesTotal     *prometheus.CounterVec
	notificationsPublished *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		storageOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Object store calls by store, operation and result.",
		}, []string{"store", "operation", "result"})

		storageLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storage_operation_seconds",
			Help:    "Latency of object store calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"store", "operation"})

		submissionOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "submission_outcomes_total",
			Help: "Submit attempts by outcome.",
		}, []string{"outcome"})

		deletionFilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deletion_files_total",
			Help: "Physical file deletions issued by cleanup, by store and result.",
		}, []string{"store", "result"})

		notificationsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Graded notifications published by transport.",
		}, []string{"transport", "result"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			storageOperationsTotal,
			storageLatencySeconds,
			submissionOutcomes,
			deletionFilesTotal,
			notificationsPublished,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// StorageOperations counts object store calls.
func StorageOperations() *prometheus.CounterVec {
	RegisterMetrics()
	return storageOperationsTotal
}

// StorageLatency observes object store call latency.
func StorageLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return storageLatencySeconds
}

// SubmissionOutcomes counts submit attempts.
func SubmissionOutcomes() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionOutcomes
}

// DeletionFiles counts cleanup deletes.
func DeletionFiles() *prometheus.CounterVec {
	RegisterMetrics()
	return deletionFilesTotal
}

// NotificationsPublished counts graded notifications.
func NotificationsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublished
}
