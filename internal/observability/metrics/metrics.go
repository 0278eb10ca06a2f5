package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	metricPrefix = "donations_"

	resultSuccess  = "success"
	resultError    = "error"
	resultConflict = "conflict"
	resultReplay   = "replay"
)

var (
	registerOnce sync.Once

	executionTotal   *prometheus.CounterVec
	executionLatency *prometheus.HistogramVec
	terminations     *prometheus.CounterVec

	receiptAllocTotal   *prometheus.CounterVec
	receiptAllocLatency *prometheus.HistogramVec

	projectionLength   prometheus.Histogram
	scheduleExport     *prometheus.CounterVec
	scheduleExportTime *prometheus.HistogramVec

	dueSweepTotal   *prometheus.CounterVec
	dueSweepLatency prometheus.Histogram
	dueSweepFound   prometheus.Gauge
)

// Init registers metrics and DB-backed gauges.
func Init(db *sql.DB, logger logrus.FieldLogger) {
	registerOnce.Do(func() {
		executionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pledge_executions_total",
				Help: "Total recorded pledge executions by result",
			},
			[]string{"result"},
		)
		executionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "pledge_execution_latency_seconds",
				Help:    "Pledge execution recording latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		terminations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pledge_terminations_total",
				Help: "Total pledge terminations by reason",
			},
			[]string{"reason"},
		)

		receiptAllocTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "receipt_allocations_total",
				Help: "Total receipt number allocations by result",
			},
			[]string{"result"},
		)
		receiptAllocLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "receipt_allocation_latency_seconds",
				Help:    "Receipt allocation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		projectionLength = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "schedule_projection_length",
				Help:    "Number of occurrences returned per projection",
				Buckets: []float64{0, 1, 3, 6, 12, 24, 60, 120},
			},
		)
		scheduleExport = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "schedule_export_total",
				Help: "Total schedule exports by format and result",
			},
			[]string{"format", "result"},
		)
		scheduleExportTime = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "schedule_export_latency_seconds",
				Help:    "Schedule export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		dueSweepTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "due_sweep_total",
				Help: "Total due sweeps by result",
			},
			[]string{"result"},
		)
		dueSweepLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "due_sweep_latency_seconds",
				Help:    "Due sweep latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		dueSweepFound = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "due_sweep_pledges",
				Help: "Pledges found due by the last sweep",
			},
		)

		prometheus.MustRegister(
			executionTotal,
			executionLatency,
			terminations,
			receiptAllocTotal,
			receiptAllocLatency,
			projectionLength,
			scheduleExport,
			scheduleExportTime,
			dueSweepTotal,
			dueSweepLatency,
			dueSweepFound,
		)

		if db != nil {
			if logger == nil {
				logger = logrus.StandardLogger()
			}
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveExecution records execution latency and result.
func ObserveExecution(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if executionTotal != nil {
		executionTotal.WithLabelValues(result).Inc()
	}
	if executionLatency != nil {
		executionLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncTermination increments the termination counter.
func IncTermination(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if terminations != nil {
		terminations.WithLabelValues(reason).Inc()
	}
}

// ObserveReceiptAllocation records receipt allocation latency and result.
func ObserveReceiptAllocation(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if receiptAllocTotal != nil {
		receiptAllocTotal.WithLabelValues(result).Inc()
	}
	if receiptAllocLatency != nil {
		receiptAllocLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveProjection records how many occurrences a projection returned.
func ObserveProjection(count int) {
	if projectionLength != nil {
		projectionLength.Observe(float64(count))
	}
}

// ObserveScheduleExport records export latency and result.
func ObserveScheduleExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if scheduleExport != nil {
		scheduleExport.WithLabelValues(format, result).Inc()
	}
	if scheduleExportTime != nil {
		scheduleExportTime.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveDueSweep records a sweep run and the number of due pledges it found.
func ObserveDueSweep(result string, found int, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if dueSweepTotal != nil {
		dueSweepTotal.WithLabelValues(result).Inc()
	}
	if dueSweepLatency != nil {
		dueSweepLatency.Observe(duration.Seconds())
	}
	if dueSweepFound != nil && result == resultSuccess {
		dueSweepFound.Set(float64(found))
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultConflict = resultConflict
	ResultReplay   = resultReplay
)
