// Package metrics provides Prometheus metrics for the CodeSync scoring pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// latencyBuckets suits operations measured in milliseconds, from cache hits
// up to slow platform fetches.
var latencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000} //nolint:gochecknoglobals // shared default buckets

// Manager manages all Prometheus metrics for the CodeSync service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Pipeline Metrics - refreshes, fetches and score computation
	refreshes            *prometheus.CounterVec
	refreshDuration      *prometheus.HistogramVec
	platformFetches      *prometheus.CounterVec
	platformFetchLatency *prometheus.HistogramVec
	scoringLatency       prometheus.Histogram
	scoringErrors        prometheus.Counter
	snapshotsAppended    prometheus.Counter

	// Score Cache Metrics - freshness decisions and the Redis layer
	scoreCache *prometheus.CounterVec
	storeCache *prometheus.CounterVec

	// Operational Health Metrics
	totalStudents  prometheus.Gauge
	rankedStudents prometheus.Gauge

	// Repository Metrics
	repositoryLatency *prometheus.HistogramVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue Metrics - async refresh jobs
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram
	jobsDuplicate          prometheus.Counter

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "codesync",
		subsystem:        "pipeline",
		histogramBuckets: latencyBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.refreshes = m.counterVec("refreshes_total",
		"Total number of student refreshes by kind and outcome", "kind", "outcome")
	m.refreshDuration = m.histogramVec("refresh_duration_milliseconds",
		"Refresh duration in milliseconds by kind", "kind")
	m.platformFetches = m.counterVec("platform_fetches_total",
		"Total number of platform fetches by platform and outcome", "platform", "outcome")
	m.platformFetchLatency = m.histogramVec("platform_fetch_latency_milliseconds",
		"Platform adapter latency in milliseconds", "platform")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds",
		"Histogram of aggregate score computation latency in milliseconds", m.histogramBuckets)
	m.scoringErrors = m.counter("scoring_errors_total",
		"Total number of score computations that could not be persisted")
	m.snapshotsAppended = m.counter("snapshots_appended_total",
		"Total number of score snapshots appended to history")

	m.scoreCache = m.counterVec("score_cache_total",
		"Score cache lookups by result (hit, miss, stale, recompute)", "result")
	m.storeCache = m.counterVec("store_cache_total",
		"Redis score cache lookups by result (hit, miss)", "result")

	m.totalStudents = m.gauge("total_students", "Total number of students with linked handles")
	m.rankedStudents = m.gauge("ranked_students", "Number of students on the leaderboard")

	m.repositoryLatency = m.histogramVec("repository_latency_milliseconds",
		"Repository operation latency in milliseconds", "operation")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Current number of pending refresh jobs")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of refresh jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of refresh jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of rejected enqueues")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds",
		"Enqueue latency in milliseconds", m.histogramBuckets)
	m.jobsDuplicate = m.counter("jobs_duplicate_total",
		"Total number of refresh jobs dropped because identical work was already pending")

	m.workerActiveCount = m.gauge("worker_active_count", "Number of workers currently running a job")
	m.workerIdleCount = m.gauge("worker_idle_count", "Number of idle workers")
	m.workerMessagesPerSecond = m.gauge("worker_messages_per_second",
		"Average jobs processed per second by the pool")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Worker job latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of failed jobs")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total",
		"Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds",
		"Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Pipeline Metrics Functions.

// RecordRefresh counts one refresh of the given kind (all, one, batch,
// recompute, scheduled) with its outcome.
func RecordRefresh(kind, outcome string) {
	globalManager.refreshes.WithLabelValues(kind, outcome).Inc()
}

// RecordRefreshDuration records how long a refresh of the given kind took.
func RecordRefreshDuration(kind string, latencyMs float64) {
	globalManager.refreshDuration.WithLabelValues(kind).Observe(latencyMs)
}

// RecordPlatformFetch counts one adapter call; outcome is "ok" or the failure reason.
func RecordPlatformFetch(platform, outcome string) {
	globalManager.platformFetches.WithLabelValues(platform, outcome).Inc()
}

// RecordPlatformFetchLatency records adapter latency for a platform.
func RecordPlatformFetchLatency(platform string, latencyMs float64) {
	globalManager.platformFetchLatency.WithLabelValues(platform).Observe(latencyMs)
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordScoringError increments the scoring errors counter.
func RecordScoringError() {
	globalManager.scoringErrors.Inc()
}

// RecordSnapshotAppended increments the snapshot counter.
func RecordSnapshotAppended() {
	globalManager.snapshotsAppended.Inc()
}

// Score Cache Metrics Functions.

// RecordScoreCacheHit counts a fresh cached score served as-is.
func RecordScoreCacheHit() {
	globalManager.scoreCache.WithLabelValues("hit").Inc()
}

// RecordScoreCacheMiss counts a lookup with no cached score.
func RecordScoreCacheMiss() {
	globalManager.scoreCache.WithLabelValues("miss").Inc()
}

// RecordScoreCacheStale counts a stale score served without recompute.
func RecordScoreCacheStale() {
	globalManager.scoreCache.WithLabelValues("stale").Inc()
}

// RecordScoreRecompute counts a lookup that triggered a recompute.
func RecordScoreRecompute() {
	globalManager.scoreCache.WithLabelValues("recompute").Inc()
}

// RecordStoreCacheHit counts a score served from Redis.
func RecordStoreCacheHit() {
	globalManager.storeCache.WithLabelValues("hit").Inc()
}

// RecordStoreCacheMiss counts a Redis lookup that fell through to the store.
func RecordStoreCacheMiss() {
	globalManager.storeCache.WithLabelValues("miss").Inc()
}

// UpdateTotalStudents sets the number of known students.
func UpdateTotalStudents(count int) {
	globalManager.totalStudents.Set(float64(count))
}

// UpdateRankedStudents sets the number of ranked students.
func UpdateRankedStudents(count int) {
	globalManager.rankedStudents.Set(float64(count))
}

// Repository Metrics Functions.

// RecordRepositoryLatency records the latency of a named repository operation.
func RecordRepositoryLatency(operation string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

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

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// RecordJobDuplicate increments the duplicate job counter.
func RecordJobDuplicate() {
	globalManager.jobsDuplicate.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average jobs processed per second.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the heap memory in use.
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
