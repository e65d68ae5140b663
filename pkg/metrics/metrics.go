package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	OperationWrite   = "write"
	OperationRecover = "recover"
	OperationVerify  = "verify"
)

// Metrics holds all Prometheus metrics for pack, recovery and serve runs.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Entry metrics
	entriesTotal *prometheus.CounterVec
	bytesTotal   *prometheus.CounterVec

	// Batch metrics
	batchesTotal  *prometheus.CounterVec
	batchDuration prometheus.Histogram
	batchSize     prometheus.Histogram

	// Store metrics
	storeEntries   prometheus.Gauge
	storeDiskBytes prometheus.Gauge

	// HTTP request metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		entriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datapak_entries_total",
				Help: "Entries processed, by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),

		bytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datapak_payload_bytes_total",
				Help: "Payload bytes written to the store or recovered to disk",
			},
			[]string{"operation"},
		),

		batchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datapak_batches_total",
				Help: "Write batches, by status",
			},
			[]string{"status"},
		),

		batchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "datapak_batch_duration_seconds",
				Help:    "Time spent inside a write transaction",
				Buckets: prometheus.DefBuckets,
			},
		),

		batchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "datapak_batch_entries",
				Help:    "Entries per committed batch",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		storeEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "datapak_store_entries",
				Help: "Entry count recorded in the store metadata",
			},
		),

		storeDiskBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "datapak_store_disk_bytes",
				Help: "Disk space used by the store",
			},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datapak_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datapak_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}
}

// RecordEntry records one entry outcome ("succeeded", or a report kind).
func (m *Metrics) RecordEntry(operation, outcome string, bytes int64) {
	if m == nil {
		return
	}
	m.entriesTotal.WithLabelValues(operation, outcome).Inc()
	if bytes > 0 {
		m.bytesTotal.WithLabelValues(operation).Add(float64(bytes))
	}
}

// RecordBatch records a committed or failed batch.
func (m *Metrics) RecordBatch(success bool, entries int, duration time.Duration) {
	if m == nil {
		return
	}
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.batchesTotal.WithLabelValues(status).Inc()
	m.batchDuration.Observe(duration.Seconds())
	if success {
		m.batchSize.Observe(float64(entries))
	}
}

// UpdateStoreStats updates store statistics
func (m *Metrics) UpdateStoreStats(entries uint64, diskBytes uint64) {
	if m == nil {
		return
	}
	m.storeEntries.Set(float64(entries))
	m.storeDiskBytes.Set(float64(diskBytes))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rw, r)
		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry to path in the node-exporter textfile
// format, for batch jobs that are not scraped.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
