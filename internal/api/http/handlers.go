package apihttp

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"foundry-telemetry/internal/feed"
	"foundry-telemetry/internal/observability/metrics"
	telemetry "foundry-telemetry/internal/telemetry/domain"
)

const timeLayout = time.RFC3339

// FeedReader is the read side the handlers depend on.
type FeedReader interface {
	Now() time.Time
	Rows(ctx context.Context, station string, from, to time.Time) ([]telemetry.Row, error)
	Latest(ctx context.Context) ([]feed.LatestEnergy, error)
	CurrentPower(ctx context.Context) (float64, error)
	PowerView(ctx context.Context) ([]feed.PowerPoint, error)
	DailyConsumption(ctx context.Context, from, to time.Time) ([]feed.DailyValue, error)
	DailyProduction(ctx context.Context, from, to time.Time) ([]feed.DailyValue, error)
	Today(ctx context.Context) (feed.TodaySummary, error)
	Monthly(ctx context.Context, month time.Time) (feed.MonthlySummary, error)
	PreviousMonth() time.Time
}

// RowsHandler serves raw station rows.
type RowsHandler struct {
	feed FeedReader
}

// NewRowsHandler constructs a RowsHandler.
func NewRowsHandler(feed FeedReader) *RowsHandler {
	return &RowsHandler{feed: feed}
}

// ServeHTTP handles GET /api/v1/rows.
func (h *RowsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rows, ok := loadRows(w, r, h.feed)
	if !ok {
		return
	}
	writeJSON(w, rows)
}

// ExportRowsCSVHandler serves raw station rows as CSV.
type ExportRowsCSVHandler struct {
	feed FeedReader
}

// NewExportRowsCSVHandler constructs a ExportRowsCSVHandler.
func NewExportRowsCSVHandler(feed FeedReader) *ExportRowsCSVHandler {
	return &ExportRowsCSVHandler{feed: feed}
}

// ServeHTTP handles GET /api/v1/exports/rows.csv.
func (h *ExportRowsCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rows, ok := loadRows(w, r, h.feed)
	if !ok {
		metrics.ObserveExport("csv", metrics.ResultError, time.Since(start))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="rows.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{
		"id", "station", "date", "time", "heat_no",
		"power_factor", "power_kw", "reading_kvah", "consumption_kvah", "machine_status", "notification",
		"furnace_temperature", "fe_pct", "c_pct", "cr_pct", "ni_pct", "cumulative_planned_kg", "cumulative_actual_kg",
	})
	for _, row := range rows {
		record := []string{
			strconv.FormatInt(row.ID, 10),
			row.Station,
			row.TS.Format(time.DateOnly),
			row.TS.Format(time.TimeOnly),
			row.HeatNo,
		}
		if e := row.Energy; e != nil {
			record = append(record,
				formatFloat(e.PowerFactor), formatFloat(e.PowerKW), formatFloat(e.ReadingKVAh), formatFloat(e.ConsumptionKVAh),
				string(e.Status), string(e.Notification),
			)
		} else {
			record = append(record, "", "", "", "", "", "")
		}
		if p := row.Production; p != nil {
			record = append(record,
				formatFloat(p.FurnaceTemperature), formatFloat(p.FePct), formatFloat(p.CPct), formatFloat(p.CrPct), formatFloat(p.NiPct),
				formatFloat(p.CumulativePlannedKg), formatFloat(p.CumulativeActualKg),
			)
		} else {
			record = append(record, "", "", "", "", "", "", "")
		}
		_ = writer.Write(record)
	}
	writer.Flush()
	metrics.ObserveExport("csv", resultOf(writer.Error()), time.Since(start))
}

// SummaryHandler serves the dashboard cards.
type SummaryHandler struct {
	feed FeedReader
}

// NewSummaryHandler constructs a SummaryHandler.
func NewSummaryHandler(feed FeedReader) *SummaryHandler {
	return &SummaryHandler{feed: feed}
}

// ServeHTTP handles GET /api/v1/{latest,current_power,power_view,today,daily_consumption,daily_production}.
func (h *SummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.feed == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	var (
		body any
		err  error
	)
	switch strings.TrimPrefix(r.URL.Path, "/api/v1/") {
	case "latest":
		body, err = h.feed.Latest(ctx)
	case "current_power":
		var power float64
		power, err = h.feed.CurrentPower(ctx)
		body = map[string]float64{"TotalPower": power}
	case "power_view":
		body, err = h.feed.PowerView(ctx)
	case "today":
		body, err = h.feed.Today(ctx)
	case "daily_consumption", "daily_production":
		from, to, rangeErr := parseRange(r, h.feed.Now())
		if rangeErr != nil {
			http.Error(w, rangeErr.Error(), http.StatusBadRequest)
			return
		}
		if strings.HasSuffix(r.URL.Path, "consumption") {
			body, err = h.feed.DailyConsumption(ctx, from, to)
		} else {
			body, err = h.feed.DailyProduction(ctx, from, to)
		}
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "query feed error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, body)
}

// MonthlyHandler serves monthly consumption, production and consumption per tonne.
type MonthlyHandler struct {
	feed FeedReader
}

// NewMonthlyHandler constructs a MonthlyHandler.
func NewMonthlyHandler(feed FeedReader) *MonthlyHandler {
	return &MonthlyHandler{feed: feed}
}

// ServeHTTP handles GET /api/v1/monthly.
func (h *MonthlyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	summary, ok := loadMonthly(w, r, h.feed)
	if !ok {
		return
	}
	writeJSON(w, summary)
}

// MonthlyReportHandler serves monthly reports as XLSX or PDF.
type MonthlyReportHandler struct {
	feed FeedReader
}

// NewMonthlyReportHandler constructs a MonthlyReportHandler.
func NewMonthlyReportHandler(feed FeedReader) *MonthlyReportHandler {
	return &MonthlyReportHandler{feed: feed}
}

// ServeHTTP handles GET /api/v1/reports/monthly.xlsx and /api/v1/reports/monthly.pdf.
func (h *MonthlyReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format := strings.TrimPrefix(r.URL.Path, "/api/v1/reports/monthly.")
	if format != "xlsx" && format != "pdf" {
		http.NotFound(w, r)
		return
	}
	start := time.Now()
	summary, ok := loadMonthly(w, r, h.feed)
	if !ok {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		return
	}

	var (
		data        []byte
		err         error
		contentType string
	)
	if format == "xlsx" {
		data, err = feed.BuildMonthlyXLSX(summary, h.feed.Now())
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	} else {
		data, err = feed.BuildMonthlyPDF(summary, h.feed.Now())
		contentType = "application/pdf"
	}
	metrics.ObserveExport(format, resultOf(err), time.Since(start))
	if err != nil {
		http.Error(w, "render report error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="monthly-`+summary.Month+`.`+format+`"`)
	_, _ = w.Write(data)
}

// RunsHandler serves the generator run ledger.
type RunsHandler struct {
	runs telemetry.RunRecorder
}

// NewRunsHandler constructs a RunsHandler.
func NewRunsHandler(runs telemetry.RunRecorder) *RunsHandler {
	return &RunsHandler{runs: runs}
}

// ServeHTTP handles GET /api/v1/runs.
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.runs == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if value := r.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	runs, err := h.runs.ListRuns(r.Context(), r.URL.Query().Get("station"), limit)
	if err != nil {
		http.Error(w, "query runs error", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []telemetry.Run{}
	}
	writeJSON(w, runs)
}

func loadRows(w http.ResponseWriter, r *http.Request, reader FeedReader) ([]telemetry.Row, bool) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil, false
	}
	if reader == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return nil, false
	}
	station := r.URL.Query().Get("station")
	if station == "" {
		http.Error(w, "station is required", http.StatusBadRequest)
		return nil, false
	}
	from, to, err := parseRange(r, reader.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	rows, err := reader.Rows(r.Context(), station, from, to)
	if errors.Is(err, feed.ErrUnknownStation) {
		http.Error(w, "unknown station", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		http.Error(w, "query rows error", http.StatusInternalServerError)
		return nil, false
	}
	return rows, true
}

func loadMonthly(w http.ResponseWriter, r *http.Request, reader FeedReader) (feed.MonthlySummary, bool) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return feed.MonthlySummary{}, false
	}
	if reader == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return feed.MonthlySummary{}, false
	}
	month := reader.Now()
	if value := r.URL.Query().Get("month"); value != "" {
		parsed, err := time.ParseInLocation("2006-01", value, month.Location())
		if err != nil {
			http.Error(w, "month must be YYYY-MM", http.StatusBadRequest)
			return feed.MonthlySummary{}, false
		}
		month = parsed
	} else if r.URL.Query().Get("previous") == "true" {
		month = reader.PreviousMonth()
	}
	summary, err := reader.Monthly(r.Context(), month)
	if err != nil {
		http.Error(w, "query monthly error", http.StatusInternalServerError)
		return feed.MonthlySummary{}, false
	}
	return summary, true
}

// parseRange reads optional from/to. Dates (YYYY-MM-DD) and RFC3339 are accepted; a bare
// to date is inclusive. Missing bounds default to the current day.
func parseRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	from, err := parseTimeQuery(r, "from", day, now.Location(), false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseTimeQuery(r, "to", day.AddDate(0, 0, 1), now.Location(), true)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}

func parseTimeQuery(r *http.Request, key string, fallback time.Time, loc *time.Location, endOfDay bool) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback, nil
	}
	if parsed, err := time.Parse(timeLayout, value); err == nil {
		return parsed.In(loc), nil
	}
	parsed, err := time.ParseInLocation(time.DateOnly, value, loc)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339 or YYYY-MM-DD")
	}
	if endOfDay {
		parsed = parsed.AddDate(0, 0, 1)
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func resultOf(err error) string {
	if err != nil {
		return metrics.ResultError
	}
	return metrics.ResultSuccess
}
