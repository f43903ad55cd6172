package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	telemetry "foundry-telemetry/internal/telemetry/domain"
)

const powerViewPoints = 9

// ErrUnknownStation is returned when a query names a station with no source.
var ErrUnknownStation = errors.New("feed: unknown station")

// Source is one station table the feed reads from.
type Source struct {
	Name       string
	Label      string
	Production bool
	Reader     telemetry.RowReader
}

// LatestEnergy is the newest reading of one energy station.
type LatestEnergy struct {
	Process     string    `json:"Process"`
	Power       float64   `json:"Power"`
	Consumption float64   `json:"Consumption"`
	PowerFactor float64   `json:"PowerFactor"`
	TS          time.Time `json:"Timestamp"`
}

// PowerPoint is total power across energy stations at one minute.
type PowerPoint struct {
	Timestamp    time.Time `json:"Timestamp"`
	TotalPowerKW float64   `json:"Total_Power_KW"`
}

// DailyValue is one day of an aggregate series.
type DailyValue struct {
	Date  string  `json:"Date"`
	Value float64 `json:"Value"`
}

// TodaySummary is the consumption and production of the current day.
type TodaySummary struct {
	Date             string  `json:"Date"`
	TodayConsumption float64 `json:"TodayConsumption"`
	TodayProduction  float64 `json:"TodayProduction"`
}

// DaySummary is one day of a monthly summary.
type DaySummary struct {
	Date         string  `json:"Date"`
	Consumption  float64 `json:"Consumption"`
	ProductionKg float64 `json:"ProductionKg"`
}

// MonthlySummary aggregates one calendar month.
type MonthlySummary struct {
	Month               string       `json:"Month"`
	Consumption         float64      `json:"Consumption"`
	ProductionKg        float64      `json:"ProductionKg"`
	ConsumptionPerTonne float64      `json:"ConsumptionPerTonne"`
	Days                []DaySummary `json:"Days"`
}

// Service computes dashboard aggregates from the raw row stream.
type Service struct {
	sources []Source
	clock   telemetry.Clock
	loc     *time.Location
}

// NewService constructs a feed service.
func NewService(sources []Source, clock telemetry.Clock, loc *time.Location) (*Service, error) {
	if len(sources) == 0 {
		return nil, errors.New("feed: no sources")
	}
	for _, src := range sources {
		if src.Reader == nil || src.Name == "" {
			return nil, fmt.Errorf("feed: invalid source %q", src.Name)
		}
	}
	if clock == nil {
		clock = telemetry.SystemClock{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{sources: sources, clock: clock, loc: loc}, nil
}

// Now returns the service clock time in the feed location.
func (s *Service) Now() time.Time { return s.clock.Now().In(s.loc) }

// Stations lists source names in configuration order.
func (s *Service) Stations() []string {
	names := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		names = append(names, src.Name)
	}
	return names
}

// Rows returns one station's rows with from <= ts < to.
func (s *Service) Rows(ctx context.Context, station string, from, to time.Time) ([]telemetry.Row, error) {
	for _, src := range s.sources {
		if src.Name == station {
			return src.Reader.ListRows(ctx, from, to)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownStation, station)
}

// Latest returns the newest row of every energy station that has data.
func (s *Service) Latest(ctx context.Context) ([]LatestEnergy, error) {
	out := make([]LatestEnergy, 0, len(s.sources))
	for _, src := range s.sources {
		if src.Production {
			continue
		}
		row, err := src.Reader.LastRow(ctx)
		if errors.Is(err, telemetry.ErrRowNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("latest %s: %w", src.Name, err)
		}
		if row.Energy == nil {
			continue
		}
		out = append(out, LatestEnergy{
			Process:     processName(src),
			Power:       row.Energy.PowerKW,
			Consumption: row.Energy.ConsumptionKVAh,
			PowerFactor: row.Energy.PowerFactor,
			TS:          row.TS,
		})
	}
	return out, nil
}

// CurrentPower sums the latest power across energy stations, rounded to one digit.
func (s *Service) CurrentPower(ctx context.Context) (float64, error) {
	latest, err := s.Latest(ctx)
	if err != nil {
		return 0, err
	}
	total := decimal.Zero
	for _, l := range latest {
		total = total.Add(decimal.NewFromFloat(l.Power))
	}
	return round1(total), nil
}

// PowerView returns total power for the last minutes written on the newest day.
func (s *Service) PowerView(ctx context.Context) ([]PowerPoint, error) {
	var newest time.Time
	for _, src := range s.sources {
		if src.Production {
			continue
		}
		row, err := src.Reader.LastRow(ctx)
		if errors.Is(err, telemetry.ErrRowNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if row.TS.After(newest) {
			newest = row.TS
		}
	}
	if newest.IsZero() {
		return []PowerPoint{}, nil
	}

	from := newest.Add(-powerViewPoints * time.Minute)
	totals := make(map[time.Time]decimal.Decimal)
	for _, src := range s.sources {
		if src.Production {
			continue
		}
		rows, err := src.Reader.ListRows(ctx, from, newest.Add(time.Minute))
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row.Energy == nil {
				continue
			}
			totals[row.TS] = totals[row.TS].Add(decimal.NewFromFloat(row.Energy.PowerKW))
		}
	}
	points := make([]PowerPoint, 0, len(totals))
	for ts, total := range totals {
		points = append(points, PowerPoint{Timestamp: ts, TotalPowerKW: round2(total)})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	if len(points) > powerViewPoints {
		points = points[len(points)-powerViewPoints:]
	}
	return points, nil
}

// DailyConsumption sums consumption per day across energy stations for [from, to).
func (s *Service) DailyConsumption(ctx context.Context, from, to time.Time) ([]DailyValue, error) {
	days, err := s.daily(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]DailyValue, 0, len(days))
	for _, d := range days {
		out = append(out, DailyValue{Date: d.Date, Value: d.Consumption})
	}
	return out, nil
}

// DailyProduction returns produced metal per day for [from, to).
func (s *Service) DailyProduction(ctx context.Context, from, to time.Time) ([]DailyValue, error) {
	days, err := s.daily(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]DailyValue, 0, len(days))
	for _, d := range days {
		out = append(out, DailyValue{Date: d.Date, Value: d.ProductionKg})
	}
	return out, nil
}

// Today returns the current day's consumption and production rounded to one digit.
func (s *Service) Today(ctx context.Context) (TodaySummary, error) {
	day := dayStart(s.Now())
	days, err := s.daily(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return TodaySummary{}, err
	}
	summary := TodaySummary{Date: day.Format(time.DateOnly)}
	if len(days) == 1 {
		summary.TodayConsumption = roundFloat1(days[0].Consumption)
		summary.TodayProduction = roundFloat1(days[0].ProductionKg)
	}
	return summary, nil
}

// Monthly summarizes the calendar month containing month.
func (s *Service) Monthly(ctx context.Context, month time.Time) (MonthlySummary, error) {
	month = month.In(s.loc)
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 1, 0)
	days, err := s.daily(ctx, start, end)
	if err != nil {
		return MonthlySummary{}, err
	}
	consumption, production := decimal.Zero, decimal.Zero
	for _, d := range days {
		consumption = consumption.Add(decimal.NewFromFloat(d.Consumption))
		production = production.Add(decimal.NewFromFloat(d.ProductionKg))
	}
	summary := MonthlySummary{
		Month:        start.Format("2006-01"),
		Consumption:  round1(consumption),
		ProductionKg: round1(production),
		Days:         days,
	}
	if production.IsPositive() {
		tonnes := production.Div(decimal.NewFromInt(1000))
		summary.ConsumptionPerTonne = round1(consumption.Div(tonnes))
	}
	return summary, nil
}

// PreviousMonth returns the first day of the month before now.
func (s *Service) PreviousMonth() time.Time {
	now := s.Now()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc).AddDate(0, -1, 0)
}

// daily buckets rows by calendar day. Consumption is summed over energy stations; production
// is the day's highest cumulative actual metal, summed over production stations.
func (s *Service) daily(ctx context.Context, from, to time.Time) ([]DaySummary, error) {
	consumption := make(map[string]decimal.Decimal)
	production := make(map[string]decimal.Decimal)
	for _, src := range s.sources {
		rows, err := src.Reader.ListRows(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("daily %s: %w", src.Name, err)
		}
		peak := make(map[string]float64)
		for _, row := range rows {
			key := row.TS.In(s.loc).Format(time.DateOnly)
			switch {
			case row.Energy != nil:
				consumption[key] = consumption[key].Add(decimal.NewFromFloat(row.Energy.ConsumptionKVAh))
			case row.Production != nil:
				if v, ok := peak[key]; !ok || row.Production.CumulativeActualKg > v {
					peak[key] = row.Production.CumulativeActualKg
				}
			}
		}
		for key, v := range peak {
			production[key] = production[key].Add(decimal.NewFromFloat(v))
		}
	}

	keys := make([]string, 0, len(consumption)+len(production))
	seen := make(map[string]bool)
	for key := range consumption {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	for key := range production {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := make([]DaySummary, 0, len(keys))
	for _, key := range keys {
		out = append(out, DaySummary{
			Date:         key,
			Consumption:  round2(consumption[key]),
			ProductionKg: round2(production[key]),
		})
	}
	return out, nil
}

func processName(src Source) string {
	if src.Label != "" {
		return src.Label
	}
	return src.Name
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func round1(d decimal.Decimal) float64 { return d.Round(1).InexactFloat64() }

func round2(d decimal.Decimal) float64 { return d.Round(2).InexactFloat64() }

func roundFloat1(v float64) float64 { return round1(decimal.NewFromFloat(v)) }
