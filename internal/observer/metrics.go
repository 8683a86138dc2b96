package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for admission metrics
	admissionLabels = []string{"consumer", "outcome"}
	// Labels for duplicate detections
	duplicateLabels = []string{"consumer", "source"}
	// Labels for processing outcomes
	processingLabels = []string{"consumer", "result"}

	// Admission counters
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_idempotency_admissions_total",
			Help: "Total number of admission decisions, labeled by outcome (new, duplicate, quarantined).",
		},
		admissionLabels,
	)
	DuplicatesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_idempotency_duplicates_detected_total",
			Help: "Total number of duplicate deliveries detected, labeled by detection source.",
		},
		duplicateLabels,
	)
	MessagesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_idempotency_messages_processed_total",
			Help: "Total number of deliveries that completed processing, labeled by result.",
		},
		processingLabels,
	)

	// Histogram for end-to-end processing duration
	ProcessingDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_idempotency_processing_duration_seconds",
			Help:    "Histogram of end-to-end message processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"consumer"},
	)
)

// Metrics related to dead-letter handling
var (
	deadLetterAdmitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_idempotency_dead_letter_admits_total",
		Help: "Total number of messages quarantined into the dead-letter store.",
	})
	deadLetterRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_idempotency_dead_letter_retries_total",
		Help: "Total number of manual retries issued against dead-letter entries.",
	})
	deadLetterPendingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "order_idempotency_dead_letter_pending",
		Help: "Current number of pending entries in the dead-letter store.",
	})
)

// Metrics related to the ingestion worker pool
var (
	ingestFetchRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_idempotency_ingest_fetch_requests_total",
		Help: "Total number of fetch requests made against the orders stream.",
	})
	ingestFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_idempotency_ingest_fetch_errors_total",
		Help: "Total number of errors encountered while fetching from the orders stream.",
	})
	ingestQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "order_idempotency_ingest_queue_length",
		Help: "Current number of messages waiting in the internal ingestion channel.",
	})
	ingestWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "order_idempotency_ingest_workers_active",
		Help: "Current number of active goroutines in the ingestion worker pool.",
	})
	ingestNaksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_idempotency_ingest_naks_total",
		Help: "Total number of negative acknowledgements issued for transient failures.",
	})
	ingestTermsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_idempotency_ingest_terms_total",
		Help: "Total number of deliveries terminated as unprocessable.",
	})
)

// Metrics emitted by the load generator (cmd/tester)
var (
	loadgenLabels = []string{"subject", "kind"}

	loadgenMessagesAttemptedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_idempotency_loadgen_messages_attempted_total",
			Help: "Total number of messages the load generator attempted to publish.",
		},
		loadgenLabels,
	)
	loadgenMessagesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_idempotency_loadgen_messages_published_total",
			Help: "Total number of messages the load generator successfully published.",
		},
		loadgenLabels,
	)
	loadgenPublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_idempotency_loadgen_publish_errors_total",
			Help: "Total number of publish failures in the load generator.",
		},
		loadgenLabels,
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_idempotency_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// InitMetrics configures metric collection. Call once during startup.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IncAdmission increments the admission counter for the given outcome.
func IncAdmission(consumer, outcome string) {
	if !metricsEnabled {
		return
	}
	AdmissionsTotal.WithLabelValues(sanitizeConsumer(consumer), outcome).Inc()
}

// IncDuplicateDetected increments the duplicate detection counter.
func IncDuplicateDetected(consumer, source string) {
	if !metricsEnabled {
		return
	}
	DuplicatesDetectedTotal.WithLabelValues(sanitizeConsumer(consumer), source).Inc()
}

// IncMessagesProcessed increments the processed counter for the given result.
func IncMessagesProcessed(consumer, result string) {
	if !metricsEnabled {
		return
	}
	MessagesProcessedTotal.WithLabelValues(sanitizeConsumer(consumer), result).Inc()
}

// ObserveProcessingDuration records the end-to-end time for one delivery.
func ObserveProcessingDuration(consumer string, d time.Duration) {
	if !metricsEnabled {
		return
	}
	ProcessingDurationSeconds.WithLabelValues(sanitizeConsumer(consumer)).Observe(d.Seconds())
}

// IncDeadLetterAdmit increments the quarantine counter.
func IncDeadLetterAdmit() {
	if !metricsEnabled {
		return
	}
	deadLetterAdmitsTotal.Inc()
}

// IncDeadLetterRetry increments the manual retry counter.
func IncDeadLetterRetry() {
	if !metricsEnabled {
		return
	}
	deadLetterRetriesTotal.Inc()
}

// SetDeadLetterPending sets the current pending dead-letter gauge.
func SetDeadLetterPending(count int64) {
	if !metricsEnabled {
		return
	}
	deadLetterPendingGauge.Set(float64(count))
}

// IncIngestFetchRequest increments the stream fetch request counter.
func IncIngestFetchRequest() {
	if !metricsEnabled {
		return
	}
	ingestFetchRequestsTotal.Inc()
}

// IncIngestFetchError increments the stream fetch error counter.
func IncIngestFetchError() {
	if !metricsEnabled {
		return
	}
	ingestFetchErrorsTotal.Inc()
}

// SetIngestQueueLength sets the current internal ingestion queue length.
func SetIngestQueueLength(length int) {
	if !metricsEnabled {
		return
	}
	ingestQueueLength.Set(float64(length))
}

// SetIngestWorkersActive sets the current number of active ingestion workers.
func SetIngestWorkersActive(count int) {
	if !metricsEnabled {
		return
	}
	ingestWorkersActive.Set(float64(count))
}

// IncIngestNak increments the negative acknowledgement counter.
func IncIngestNak() {
	if !metricsEnabled {
		return
	}
	ingestNaksTotal.Inc()
}

// IncIngestTerm increments the terminated delivery counter.
func IncIngestTerm() {
	if !metricsEnabled {
		return
	}
	ingestTermsTotal.Inc()
}

// IncLoadgenMessagesAttempted increments the loadgen attempt counter.
func IncLoadgenMessagesAttempted(subject, kind string) {
	if !metricsEnabled {
		return
	}
	loadgenMessagesAttemptedTotal.WithLabelValues(subject, kind).Inc()
}

// IncLoadgenMessagesPublished increments the loadgen success counter.
func IncLoadgenMessagesPublished(subject, kind string) {
	if !metricsEnabled {
		return
	}
	loadgenMessagesPublishedTotal.WithLabelValues(subject, kind).Inc()
}

// IncLoadgenPublishErrors increments the loadgen publish error counter.
func IncLoadgenPublishErrors(subject, kind string) {
	if !metricsEnabled {
		return
	}
	loadgenPublishErrorsTotal.WithLabelValues(subject, kind).Inc()
}

// ObserveDbOperationDuration records the time taken by one database operation.
func ObserveDbOperationDuration(operation, entity string, d time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, status).Observe(d.Seconds())
}

// sanitizeConsumer ensures the consumer label is valid or returns a default.
func sanitizeConsumer(consumer string) string {
	if consumer == "" {
		return "unknown"
	}
	return consumer
}
