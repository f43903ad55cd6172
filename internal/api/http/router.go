package apihttp

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	telemetry "foundry-telemetry/internal/telemetry/domain"
)

// NewRouter mounts the feed API. ws may be nil to disable the live feed.
func NewRouter(reader FeedReader, runs telemetry.RunRecorder, ws http.Handler, logger *log.Logger) http.Handler {
	mux := http.NewServeMux()
	summary := NewSummaryHandler(reader)
	mux.Handle("/api/v1/rows", NewRowsHandler(reader))
	mux.Handle("/api/v1/exports/rows.csv", NewExportRowsCSVHandler(reader))
	mux.Handle("/api/v1/latest", summary)
	mux.Handle("/api/v1/current_power", summary)
	mux.Handle("/api/v1/power_view", summary)
	mux.Handle("/api/v1/today", summary)
	mux.Handle("/api/v1/daily_consumption", summary)
	mux.Handle("/api/v1/daily_production", summary)
	mux.Handle("/api/v1/monthly", NewMonthlyHandler(reader))
	mux.Handle("/api/v1/reports/", NewMonthlyReportHandler(reader))
	mux.Handle("/api/v1/runs", NewRunsHandler(runs))
	if ws != nil {
		mux.Handle("/ws", ws)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if logger == nil {
		return mux
	}
	return loggingMiddleware(mux, logger)
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
