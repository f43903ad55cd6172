package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "foundry_"

	resultSuccess = "success"
	resultError   = "error"

	pathBulk     = "bulk"
	pathPaced    = "paced"
	pathRealtime = "realtime"
)

var (
	registerOnce sync.Once

	rowsWritten   *prometheus.CounterVec
	writeErrors   *prometheus.CounterVec
	writeRetries  *prometheus.CounterVec
	writeLatency  *prometheus.HistogramVec
	phaseTotal    *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	loopState     *prometheus.GaugeVec

	feedPushes    *prometheus.CounterVec
	feedClients   prometheus.Gauge
	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers simulator metrics and DB-backed gauges for the given tables.
func Init(db *sql.DB, logger *log.Logger, tables []string) {
	registerOnce.Do(func() {
		rowsWritten = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rows_written_total",
				Help: "Total rows committed by station and load path",
			},
			[]string{"station", "path"},
		)
		writeErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "write_errors_total",
				Help: "Total failed sink writes by station and load path",
			},
			[]string{"station", "path"},
		)
		writeRetries = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "write_retries_total",
				Help: "Total write retries by task",
			},
			[]string{"task"},
		)
		writeLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "write_latency_seconds",
				Help:    "Sink write latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "result"},
		)
		phaseTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "unit_phase_total",
				Help: "Total unit phases by phase and result",
			},
			[]string{"phase", "result"},
		)
		phaseDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "unit_phase_duration_seconds",
				Help:    "Unit phase duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"station", "phase"},
		)
		loopState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "realtime_loop_state",
				Help: "Current real-time loop state (1 for the active state)",
			},
			[]string{"station", "state"},
		)

		feedPushes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "feed_pushes_total",
				Help: "Total websocket feed pushes by event",
			},
			[]string{"event"},
		)
		feedClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "feed_clients",
				Help: "Connected websocket feed clients",
			},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			rowsWritten,
			writeErrors,
			writeRetries,
			writeLatency,
			phaseTotal,
			phaseDuration,
			loopState,
			feedPushes,
			feedClients,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger, tables)
		}
	})
}

// AddRowsWritten increments committed rows for a station and path.
func AddRowsWritten(station, path string, count int) {
	if count <= 0 {
		return
	}
	if rowsWritten != nil {
		rowsWritten.WithLabelValues(orUnknown(station), orUnknown(path)).Add(float64(count))
	}
}

// IncWriteError increments failed writes for a station and path.
func IncWriteError(station, path string) {
	if writeErrors != nil {
		writeErrors.WithLabelValues(orUnknown(station), orUnknown(path)).Inc()
	}
}

// IncWriteRetry increments the retry counter for a task.
func IncWriteRetry(task string) {
	if writeRetries != nil {
		writeRetries.WithLabelValues(orUnknown(task)).Inc()
	}
}

// ObserveWrite records sink write latency and result.
func ObserveWrite(path, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if writeLatency != nil {
		writeLatency.WithLabelValues(orUnknown(path), result).Observe(duration.Seconds())
	}
}

// ObservePhase records a unit phase duration and result.
func ObservePhase(station, phase, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if phaseTotal != nil {
		phaseTotal.WithLabelValues(orUnknown(phase), result).Inc()
	}
	if phaseDuration != nil {
		phaseDuration.WithLabelValues(orUnknown(station), orUnknown(phase)).Observe(duration.Seconds())
	}
}

// SetLoopState marks state as the active real-time loop state of a station.
func SetLoopState(station, state string, all []string) {
	if loopState == nil {
		return
	}
	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1
		}
		loopState.WithLabelValues(orUnknown(station), s).Set(value)
	}
}

// IncFeedPush increments websocket pushes by event.
func IncFeedPush(event string) {
	if feedPushes != nil {
		feedPushes.WithLabelValues(orUnknown(event)).Inc()
	}
}

// SetFeedClients sets the connected websocket client count.
func SetFeedClients(count int) {
	if feedClients != nil {
		feedClients.Set(float64(count))
	}
}

// ObserveExport records report export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(orUnknown(format), result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(orUnknown(format), result).Observe(duration.Seconds())
	}
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	PathBulk     = pathBulk
	PathPaced    = pathPaced
	PathRealtime = pathRealtime
)
