package apihttp

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foundry-telemetry/internal/feed"
	telemetry "foundry-telemetry/internal/telemetry/domain"
	"foundry-telemetry/internal/telemetry/infrastructure/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func (c fixedClock) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func energyRow(id int64, ts time.Time, power, consumption float64) telemetry.Row {
	return telemetry.Row{
		ID:      id,
		Station: "Melting_Energy",
		TS:      ts,
		HeatNo:  "1",
		Energy: &telemetry.EnergyReading{
			PowerFactor:     0.9,
			PowerKW:         power,
			ReadingKVAh:     float64(id) * consumption,
			ConsumptionKVAh: consumption,
			Status:          telemetry.StatusWorking,
			Notification:    telemetry.PFNormal,
		},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *memory.Store) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	melting := store.Table("melting_energy")
	prod := store.Table("melting_production")

	mar4 := time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)
	require.NoError(t, melting.InsertBatch(ctx, []telemetry.Row{
		energyRow(1, mar4, 360, 6),
		energyRow(2, mar4.Add(time.Minute), 380, 6.5),
	}))
	require.NoError(t, prod.InsertBatch(ctx, []telemetry.Row{{
		ID:         1,
		Station:    "Melting_Production",
		TS:         mar4,
		Production: &telemetry.ProductionReading{FurnaceTemperature: 1200, CumulativePlannedKg: 300, CumulativeActualKg: 500},
	}}))

	svc, err := feed.NewService([]feed.Source{
		{Name: "melting", Label: "Melting", Reader: melting},
		{Name: "melting_production", Production: true, Reader: prod},
	}, fixedClock{now: mar4.Add(time.Hour)}, time.UTC)
	require.NoError(t, err)

	run := telemetry.Run{ID: "r1", Station: "melting", Phase: telemetry.PhaseBackfill, Status: telemetry.RunRunning, StartedAt: mar4}
	require.NoError(t, store.StartRun(ctx, run))
	return NewRouter(svc, store, nil, nil), store
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRowsHandler(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(t, router, "/api/v1/rows?station=melting&from=2025-03-04&to=2025-03-04")
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []telemetry.Row
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].ID)
	assert.Equal(t, 380.0, rows[1].Energy.PowerKW)

	rec = get(t, router, "/api/v1/rows?station=melting&from=2025-03-04T09:01:00Z&to=2025-03-04T10:00:00Z")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
	assert.Len(t, rows, 1)
}

func TestRowsHandlerRejects(t *testing.T) {
	router, _ := newTestRouter(t)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/rows").Code)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/v1/rows?station=nope").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/rows?station=melting&from=yesterday").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/rows?station=melting&from=2025-03-05&to=2025-03-04").Code)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rows?station=melting", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestExportRowsCSV(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(t, router, "/api/v1/exports/rows.csv?station=melting")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, []string{"1", "Melting_Energy", "2025-03-04", "09:00:00", "1"}, records[1][:5])
	assert.Equal(t, "380", records[2][6])
	assert.Equal(t, "", records[2][11])
}

func TestSummaryHandlers(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(t, router, "/api/v1/current_power")
	require.Equal(t, http.StatusOK, rec.Code)
	var power map[string]float64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&power))
	assert.Equal(t, 380.0, power["TotalPower"])

	rec = get(t, router, "/api/v1/today")
	require.Equal(t, http.StatusOK, rec.Code)
	var today feed.TodaySummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&today))
	assert.Equal(t, "2025-03-04", today.Date)
	assert.Equal(t, 12.5, today.TodayConsumption)
	assert.Equal(t, 500.0, today.TodayProduction)

	rec = get(t, router, "/api/v1/daily_production?from=2025-03-01&to=2025-03-31")
	require.Equal(t, http.StatusOK, rec.Code)
	var daily []feed.DailyValue
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&daily))
	require.Len(t, daily, 1)
	assert.Equal(t, 500.0, daily[0].Value)

	rec = get(t, router, "/api/v1/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest []feed.LatestEnergy
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&latest))
	require.Len(t, latest, 1)
	assert.Equal(t, "Melting", latest[0].Process)
}

func TestMonthlyHandler(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(t, router, "/api/v1/monthly?month=2025-03")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary feed.MonthlySummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, "2025-03", summary.Month)
	assert.Equal(t, 12.5, summary.Consumption)
	assert.Equal(t, 25.0, summary.ConsumptionPerTonne)

	rec = get(t, router, "/api/v1/monthly?previous=true")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, "2025-02", summary.Month)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/monthly?month=March").Code)
}

func TestMonthlyReportHandler(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(t, router, "/api/v1/reports/monthly.pdf?month=2025-03")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))

	rec = get(t, router, "/api/v1/reports/monthly.xlsx?month=2025-03")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "monthly-2025-03.xlsx")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"))

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/v1/reports/monthly.docx").Code)
}

func TestRunsHandler(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := get(t, router, "/api/v1/runs?station=melting")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []telemetry.Run
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&runs))
	require.Len(t, runs, 1)
	assert.Equal(t, telemetry.RunRunning, runs[0].Status)

	rec = get(t, router, "/api/v1/runs?station=sand")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/v1/runs?limit=0").Code)
}

func TestNilHandlersUnavailable(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRunsHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	NewRowsHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/rows?station=x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := get(t, router, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
