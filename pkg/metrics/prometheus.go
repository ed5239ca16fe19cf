// Package metrics provides Prometheus metrics for the huishype valuation service.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
	bytesPerMegabyte       = 1 << 20
	nanosPerMillisecond    = 1e6
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	refreshInterval  time.Duration
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Guess intake
	guessesReceived  *prometheus.CounterVec
	guessesDuplicate prometheus.Counter
	guessesRejected  *prometheus.CounterVec
	guessesApplied   *prometheus.CounterVec

	// Estimation
	estimates        *prometheus.CounterVec
	estimateLatency  prometheus.Histogram
	outliersTrimmed  prometheus.Counter
	estimateErrors   prometheus.Counter
	boardSize        prometheus.Gauge
	recomputeBatches prometheus.Counter

	// Store
	storeLatency *prometheus.HistogramVec

	// Queue
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueEnqueued prometheus.Counter
	queueDequeued prometheus.Counter
	queueRejected prometheus.Counter
	queueWaitTime prometheus.Histogram

	// Workers
	workerCount   prometheus.Gauge
	workerActive  prometheus.Gauge
	workerLatency prometheus.Histogram
	workerErrors  prometheus.Counter

	// HTTP and websocket
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	wsClients           prometheus.Gauge
	wsMessages          prometheus.Counter

	// Errors and config
	errorsByComponent *prometheus.CounterVec
	configReloads     *prometheus.CounterVec

	// Runtime
	systemMemoryMB    prometheus.Gauge
	systemGoroutines  prometheus.Gauge
	systemGCPauseTime prometheus.Histogram
	lastGCCount       uint32
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "huishype",
		subsystem:        "fmv",
		histogramBuckets: prometheus.DefBuckets,
		refreshInterval:  defaultRefreshInterval,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.guessesReceived = auto.NewCounterVec(m.counterOpts("guesses_received_total", "Guess events accepted onto the queue"), []string{"kind"})
	m.guessesDuplicate = auto.NewCounter(m.counterOpts("guesses_duplicate_total", "Guess events dropped by idempotency key"))
	m.guessesRejected = auto.NewCounterVec(m.counterOpts("guesses_rejected_total", "Guess events refused before queueing"), []string{"reason"})
	m.guessesApplied = auto.NewCounterVec(m.counterOpts("guesses_applied_total", "Guess events written to the store"), []string{"kind"})

	m.estimates = auto.NewCounterVec(m.counterOpts("estimates_total", "Estimates computed by confidence tier"), []string{"confidence"})
	m.estimateLatency = auto.NewHistogram(m.histogramOpts("estimate_latency_milliseconds", "Time to load guesses and compute one estimate", m.histogramBuckets))
	m.outliersTrimmed = auto.NewCounter(m.counterOpts("outliers_trimmed_total", "Guesses excluded from the crowd mean as outliers"))
	m.estimateErrors = auto.NewCounter(m.counterOpts("estimate_errors_total", "Estimates that failed to load or publish"))
	m.boardSize = auto.NewGauge(m.gaugeOpts("divergence_board_size", "Properties ranked on the divergence board"))
	m.recomputeBatches = auto.NewCounter(m.counterOpts("recompute_batches_total", "Full recompute runs"))

	m.storeLatency = auto.NewHistogramVec(m.histogramOpts("store_latency_milliseconds", "Store operation latency", m.histogramBuckets), []string{"op"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Guess events waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Queue buffer capacity"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Events enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Events dequeued"))
	m.queueRejected = auto.NewCounter(m.counterOpts("queue_rejected_total", "Enqueue attempts refused because the queue was full or closed"))
	m.queueWaitTime = auto.NewHistogram(m.histogramOpts("queue_wait_milliseconds", "Time from submission to dequeue", m.histogramBuckets))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured workers"))
	m.workerActive = auto.NewGauge(m.gaugeOpts("worker_active", "Workers currently applying an event"))
	m.workerLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Time to apply one event and recompute", m.histogramBuckets))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Events a worker failed to apply"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})
	m.wsClients = auto.NewGauge(m.gaugeOpts("ws_clients", "Connected websocket subscribers"))
	m.wsMessages = auto.NewCounter(m.counterOpts("ws_messages_sent_total", "Estimate updates pushed to websocket subscribers"))

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_total", "Errors by component and type"), []string{"component", "type"})
	m.configReloads = auto.NewCounterVec(m.counterOpts("config_reloads_total", "Config file reloads by outcome"), []string{"outcome"})

	m.systemMemoryMB = auto.NewGauge(m.gaugeOpts("system_memory_megabytes", "Heap in use in megabytes"))
	m.systemGoroutines = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// RecordGuessReceived counts an event accepted onto the queue. kind is "submit" or "retract".
func RecordGuessReceived(kind string) { globalManager.guessesReceived.WithLabelValues(kind).Inc() }

// RecordGuessDuplicate counts an event dropped by its idempotency key.
func RecordGuessDuplicate() { globalManager.guessesDuplicate.Inc() }

// RecordGuessRejected counts an event refused before queueing.
func RecordGuessRejected(reason string) { globalManager.guessesRejected.WithLabelValues(reason).Inc() }

// RecordGuessApplied counts an event persisted by a worker.
func RecordGuessApplied(kind string) { globalManager.guessesApplied.WithLabelValues(kind).Inc() }

// RecordEstimate counts one computed estimate and its trimmed outliers.
func RecordEstimate(confidence string, outliers int, latencyMs float64) {
	globalManager.estimates.WithLabelValues(confidence).Inc()
	globalManager.estimateLatency.Observe(latencyMs)
	if outliers > 0 {
		globalManager.outliersTrimmed.Add(float64(outliers))
	}
}

// RecordEstimateError counts a failed estimate.
func RecordEstimateError() { globalManager.estimateErrors.Inc() }

// UpdateBoardSize sets the number of ranked properties.
func UpdateBoardSize(n int) { globalManager.boardSize.Set(float64(n)) }

// RecordRecompute counts a full recompute run.
func RecordRecompute() { globalManager.recomputeBatches.Inc() }

// RecordStoreLatency observes one store operation.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateQueueSize sets the current queue depth.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue buffer size.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue counts an enqueued event.
func RecordQueueEnqueue() { globalManager.queueEnqueued.Inc() }

// RecordQueueDequeue counts a dequeued event.
func RecordQueueDequeue() { globalManager.queueDequeued.Inc() }

// RecordQueueRejected counts a refused enqueue.
func RecordQueueRejected() { globalManager.queueRejected.Inc() }

// RecordQueueWait observes how long an event sat in the queue.
func RecordQueueWait(latencyMs float64) { globalManager.queueWaitTime.Observe(latencyMs) }

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// WorkerBusy marks a worker as active until the returned func is called.
func WorkerBusy() func() {
	globalManager.workerActive.Inc()
	return globalManager.workerActive.Dec
}

// RecordWorkerLatency observes the time to apply one event.
func RecordWorkerLatency(latencyMs float64) { globalManager.workerLatency.Observe(latencyMs) }

// RecordWorkerError counts a failed event application.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateWSClients sets the connected subscriber count.
func UpdateWSClients(n int) { globalManager.wsClients.Set(float64(n)) }

// RecordWSMessage counts a pushed update.
func RecordWSMessage() { globalManager.wsMessages.Inc() }

// RecordError counts an error by component and type.
func RecordError(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordConfigReload counts a config reload. outcome is "ok" or "error".
func RecordConfigReload(outcome string) { globalManager.configReloads.WithLabelValues(outcome).Inc() }

// UpdateSystemMetrics samples runtime memory, goroutine and GC figures.
func UpdateSystemMetrics() {
	globalManager.sampleRuntime()
}

func (m *Manager) sampleRuntime() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.systemMemoryMB.Set(float64(ms.HeapInuse) / bytesPerMegabyte)
	m.systemGoroutines.Set(float64(runtime.NumGoroutine()))

	// PauseNs is a ring buffer of the most recent 256 pauses.
	seen := m.lastGCCount
	if ms.NumGC-seen > uint32(len(ms.PauseNs)) {
		seen = ms.NumGC - uint32(len(ms.PauseNs))
	}
	for i := seen; i < ms.NumGC; i++ {
		m.systemGCPauseTime.Observe(float64(ms.PauseNs[i%uint32(len(ms.PauseNs))]) / nanosPerMillisecond)
	}
	m.lastGCCount = ms.NumGC
}

// RunSystemCollector samples runtime metrics every refresh interval until ctx ends.
func RunSystemCollector(ctx context.Context) {
	t := time.NewTicker(globalManager.refreshInterval)
	defer t.Stop()
	for {
		globalManager.sampleRuntime()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// GetRegistry returns the custom registry for the metrics handler.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
