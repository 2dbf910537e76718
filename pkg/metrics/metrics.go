// Package metrics provides Prometheus instrumentation for the extractor.
//
// # Overview
//
// The package exposes pre-registered collectors for the three stages of an
// extraction:
//   - HTTP: requests, retries and latency per endpoint
//   - Fetch and flatten: pages, records and recovered malformed values
//   - Write: rows and buffer flushes per output table
//
// # Basic Usage
//
//	metrics.PagesFetched.WithLabelValues("deals").Inc()
//
//	timer := metrics.NewTimer("deals")
//	runResource()
//	metrics.ResourceDuration.WithLabelValues("deals").Observe(timer.Stop().Seconds())
//
// A batch job has no scrape endpoint, so the run ends with WriteTextfile,
// which leaves the collected values in node_exporter textfile format.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// HTTPRequests counts every HTTP attempt, retries included.
	// Labels: endpoint (API path), code (status code or "error")
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubspot_http_requests_total",
			Help: "Total number of HTTP attempts against the API",
		},
		[]string{"endpoint", "code"},
	)

	// HTTPRetries counts attempts that were followed by a retry.
	// Labels: endpoint, reason (rate_limit, server_error, connection, timeout)
	HTTPRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hubspot_http_retries_total",
			Help: "Total number of retried HTTP attempts",
		},
		[]string{"endpoint", "reason"},
	)

	// RequestLatency tracks the duration of single HTTP attempts in seconds.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hubspot_http_request_duration_seconds",
			Help:    "HTTP attempt latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	// PagesFetched counts pages yielded by the fetcher.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_pages_fetched_total",
			Help: "Total number of API pages fetched",
		},
		[]string{"resource"},
	)

	// RecordsProcessed counts raw records by outcome.
	// Labels: resource, status (success/failure)
	//
	// Example:
	//	metrics.RecordsProcessed.WithLabelValues("companies", metrics.StatusSuccess).Inc()
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_records_processed_total",
			Help: "Total number of raw records processed",
		},
		[]string{"resource", "status"},
	)

	// MalformedNested counts nested values skipped because of their shape.
	// Labels: table (the child table that lost the rows)
	MalformedNested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_malformed_nested_total",
			Help: "Nested values skipped because of an unexpected shape",
		},
		[]string{"table"},
	)

	// DroppedFields counts raw top level fields not mapped to any column.
	DroppedFields = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_dropped_fields_total",
			Help: "Raw fields ignored by the flattener",
		},
		[]string{"resource"},
	)

	// RowsWritten counts rows flushed to output files.
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_rows_written_total",
			Help: "Total number of rows written to output tables",
		},
		[]string{"table"},
	)

	// BufferFlushes counts buffer flushes per table.
	BufferFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractor_buffer_flushes_total",
			Help: "Total number of writer buffer flushes",
		},
		[]string{"table"},
	)

	// ResourceDuration tracks the wall time of a whole resource extraction.
	ResourceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extractor_resource_duration_seconds",
			Help:    "Duration of resource extraction in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"resource"},
	)

	// Throughput reports the records per second of the last resource run.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "extractor_throughput_records_per_second",
			Help: "Records per second of the last resource extraction",
		},
		[]string{"resource"},
	)
)

// WriteTextfile writes the current values of all registered collectors to
// path in the Prometheus text exposition format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Timer measures elapsed time for a named operation.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer's name
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It may be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks records per second for a resource.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64     // Records processed since last reset
	lastReset time.Time // Time of last reset
	resource  string
}

// NewThroughputTracker creates a new throughput tracker for a resource.
//
// Example:
//
//	tracker := metrics.NewThroughputTracker("deals")
//	for range records {
//	    tracker.Increment(1)
//	}
//	logger.Info("done", zap.Float64("records_per_sec", tracker.GetAndReset()))
func NewThroughputTracker(resource string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		resource:  resource,
	}
}

// Increment adds n to the record count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// Count returns the records counted since the last reset.
func (t *ThroughputTracker) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// GetAndReset calculates the current throughput, updates the Throughput
// gauge, resets the counter, and returns the calculated value.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed
	Throughput.WithLabelValues(t.resource).Set(throughput)

	t.count = 0
	t.lastReset = time.Now()
	return throughput
}
