// Package metrics provides Prometheus metrics for the crowdpulse service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the crowdpulse service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	auto promauto.Factory

	// Feedback intake
	feedbackReceived  prometheus.Counter
	feedbackDuplicate prometheus.Counter
	feedbackRejected  *prometheus.CounterVec

	// Recompute and engine output
	recomputeLatency   prometheus.Histogram
	recomputeErrors    prometheus.Counter
	stageTransitions   *prometheus.CounterVec
	eventPosition      *prometheus.GaugeVec
	eventComposite     *prometheus.GaugeVec
	lineEstimate       *prometheus.GaugeVec
	activeEvents       prometheus.Gauge
	registeredEvents   prometheus.Gauge
	snapshotsPublished *prometheus.CounterVec
	publishErrors      *prometheus.CounterVec

	// Repository
	repositoryShardCount      prometheus.Gauge
	repositoryRecordsTotal    prometheus.Gauge
	repositoryRecordsPerShard *prometheus.GaugeVec
	repositoryPruned          prometheus.Counter
	repositoryUpdateLatency   prometheus.Histogram
	repositoryQueryLatency    prometheus.Histogram

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "crowdpulse",
		subsystem:        "live",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.auto = promauto.With(m.registry)
	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return m.auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return m.auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return m.auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: name, Help: help,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return m.auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: name, Help: help,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return m.auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name: name, Help: help, Buckets: buckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.feedbackReceived = m.counter("feedback_received_total", "Total number of feedback submissions accepted")
	m.feedbackDuplicate = m.counter("feedback_duplicate_total", "Total number of feedback submissions dropped as duplicates")
	m.feedbackRejected = m.counterVec("feedback_rejected_total", "Total number of feedback submissions rejected", "reason")

	m.recomputeLatency = m.histogram("recompute_latency_milliseconds", "Latency of one timeline and line recompute", m.histogramBuckets)
	m.recomputeErrors = m.counter("recompute_errors_total", "Total number of failed recomputes")
	m.stageTransitions = m.counterVec("stage_transitions_total", "Stage changes observed per event", "from", "to")
	m.eventPosition = m.gaugeVec("event_position", "Latest timeline position (0-100) per live event", "event_id")
	m.eventComposite = m.gaugeVec("event_composite", "Latest composite score per live event", "event_id")
	m.lineEstimate = m.gaugeVec("event_line_minutes", "Latest line estimate in minutes per live event", "event_id")
	m.activeEvents = m.gauge("active_events", "Number of events inside their live window")
	m.registeredEvents = m.gauge("registered_events", "Number of registered events")
	m.snapshotsPublished = m.counterVec("snapshots_published_total", "Snapshots handed to publish sinks", "sink")
	m.publishErrors = m.counterVec("publish_errors_total", "Publish failures by sink", "sink")

	m.repositoryShardCount = m.gauge("repository_shard_count", "Total number of repository shards")
	m.repositoryRecordsTotal = m.gauge("repository_records_total", "Total number of feedback records held")
	m.repositoryRecordsPerShard = m.gaugeVec("repository_records_per_shard", "Number of feedback records per shard", "shard_id")
	m.repositoryPruned = m.counter("repository_pruned_total", "Feedback records dropped by retention")
	m.repositoryUpdateLatency = m.histogram("repository_update_latency_milliseconds", "Repository write latency in milliseconds", m.histogramBuckets)
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds", "Repository read latency in milliseconds", m.histogramBuckets)

	m.queueSize = m.gauge("queue_size", "Current size of the recompute queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Time a job spent queued in milliseconds", m.histogramBuckets)

	m.workerCount = m.gauge("worker_count", "Configured number of recompute workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of workers currently recomputing")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker job latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component",
		"component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint",
		"endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordFeedbackReceived increments the accepted feedback counter.
func RecordFeedbackReceived() {
	globalManager.feedbackReceived.Inc()
}

// RecordFeedbackDuplicate increments the duplicate feedback counter.
func RecordFeedbackDuplicate() {
	globalManager.feedbackDuplicate.Inc()
}

// RecordFeedbackRejected increments the rejected feedback counter for reason.
func RecordFeedbackRejected(reason string) {
	globalManager.feedbackRejected.WithLabelValues(reason).Inc()
}

// RecordRecomputeLatency records one recompute in milliseconds.
func RecordRecomputeLatency(latencyMs float64) {
	globalManager.recomputeLatency.Observe(latencyMs)
}

// RecordRecomputeError increments the recompute error counter.
func RecordRecomputeError() {
	globalManager.recomputeErrors.Inc()
}

// RecordStageTransition counts a stage change.
func RecordStageTransition(from, to string) {
	globalManager.stageTransitions.WithLabelValues(from, to).Inc()
}

// UpdateEventSnapshot sets the per-event gauges from the latest recompute.
// A negative lineMinutes clears the line gauge.
func UpdateEventSnapshot(eventID string, position, composite, lineMinutes float64) {
	globalManager.eventPosition.WithLabelValues(eventID).Set(position)
	globalManager.eventComposite.WithLabelValues(eventID).Set(composite)
	if lineMinutes < 0 {
		globalManager.lineEstimate.DeleteLabelValues(eventID)
		return
	}
	globalManager.lineEstimate.WithLabelValues(eventID).Set(lineMinutes)
}

// ForgetEvent drops the per-event series once an event leaves its live window.
func ForgetEvent(eventID string) {
	globalManager.eventPosition.DeleteLabelValues(eventID)
	globalManager.eventComposite.DeleteLabelValues(eventID)
	globalManager.lineEstimate.DeleteLabelValues(eventID)
}

// UpdateActiveEvents sets the number of live events.
func UpdateActiveEvents(count int) {
	globalManager.activeEvents.Set(float64(count))
}

// UpdateRegisteredEvents sets the number of registered events.
func UpdateRegisteredEvents(count int) {
	globalManager.registeredEvents.Set(float64(count))
}

// RecordSnapshotPublished counts a snapshot handed to sink.
func RecordSnapshotPublished(sink string) {
	globalManager.snapshotsPublished.WithLabelValues(sink).Inc()
}

// RecordPublishError counts a failed publish on sink.
func RecordPublishError(sink string) {
	globalManager.publishErrors.WithLabelValues(sink).Inc()
}

// UpdateRepositoryShardCount sets the total number of repository shards.
func UpdateRepositoryShardCount(count int) {
	globalManager.repositoryShardCount.Set(float64(count))
}

// UpdateRepositoryRecordsTotal sets the total number of feedback records.
func UpdateRepositoryRecordsTotal(count int) {
	globalManager.repositoryRecordsTotal.Set(float64(count))
}

// UpdateRepositoryRecordsPerShard sets the number of records for a specific shard.
func UpdateRepositoryRecordsPerShard(shardID string, count int) {
	globalManager.repositoryRecordsPerShard.WithLabelValues(shardID).Set(float64(count))
}

// RecordRepositoryPruned adds n records dropped by retention.
func RecordRepositoryPruned(n int) {
	globalManager.repositoryPruned.Add(float64(n))
}

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records how long a job waited in the queue.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
