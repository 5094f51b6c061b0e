package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Record flow metrics
	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "djuplet_records_total",
			Help: "Total records handled per stage and outcome",
		},
		[]string{"stage", "status"}, // status: "written"/"dropped"/"failed"
	)

	corruptLevelTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "djuplet_corrupt_level_total",
			Help: "Distribution of applied corruption levels",
		},
		[]string{"level"},
	)

	// API metrics
	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "djuplet_api_request_duration_seconds",
			Help:    "API request duration in seconds by model",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		},
		[]string{"model", "status"},
	)

	rateLimiterWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "djuplet_rate_limiter_wait_duration_seconds",
			Help:    "Rate limiter wait duration in seconds by model",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"model"},
	)

	// Worker metrics
	workerQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "djuplet_worker_queue_depth",
			Help: "Current depth of the fetch job queue",
		},
		[]string{"stage"},
	)

	activeWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "djuplet_active_workers",
			Help: "Number of active workers by stage",
		},
		[]string{"stage"},
	)

	// Upload metrics
	uploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "djuplet_upload_bytes_total",
			Help: "Bytes uploaded to the Hub by transfer kind",
		},
		[]string{"transfer"}, // "commit" or "lfs"
	)
)

// Collector provides convenience methods for recording metrics
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{logger: logger}
}

// RecordOutcome counts one record outcome for a stage
func (c *Collector) RecordOutcome(stage, status string) {
	recordsTotal.WithLabelValues(stage, status).Inc()
}

// RecordCorruptLevel counts one applied corruption level
func (c *Collector) RecordCorruptLevel(level string) {
	corruptLevelTotal.WithLabelValues(level).Inc()
}

// RecordAPIRequest records an API request duration
func (c *Collector) RecordAPIRequest(model string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	apiRequestDuration.WithLabelValues(model, status).Observe(duration.Seconds())
}

// RecordRateLimiterWait records rate limiter wait time
func (c *Collector) RecordRateLimiterWait(model string, duration time.Duration) {
	rateLimiterWaitDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// SetWorkerQueueDepth sets the current queue depth
func (c *Collector) SetWorkerQueueDepth(stage string, depth int) {
	workerQueueDepth.WithLabelValues(stage).Set(float64(depth))
}

// SetActiveWorkers sets the number of active workers
func (c *Collector) SetActiveWorkers(stage string, count int) {
	activeWorkers.WithLabelValues(stage).Set(float64(count))
}

// AddUploadBytes counts bytes pushed to the Hub
func (c *Collector) AddUploadBytes(transfer string, n int64) {
	uploadBytesTotal.WithLabelValues(transfer).Add(float64(n))
}

// Serve exposes /metrics on addr in the background for long-running stages
func Serve(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("Metrics listener stopped", "error", err)
		}
	}()
}
