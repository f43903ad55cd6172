package telemetry

import "time"

// Accumulator owns the running counters of one generation unit.
// It is not safe for concurrent use and must never be shared across stations.
type Accumulator struct {
	reading float64

	production *ProductionProfile
	day        time.Time
	hour       time.Time
	planned    float64
	actual     float64
}

// NewAccumulator builds an accumulator for cfg starting from zero.
func NewAccumulator(cfg StationConfig) *Accumulator {
	return &Accumulator{production: cfg.Production}
}

// Seed restores counters from the last persisted row of the unit's table.
// The reading always continues; metal totals continue only within the same day,
// which AdvanceProduction enforces on the next sample.
func (a *Accumulator) Seed(last *Row) {
	if last == nil {
		return
	}
	if last.Energy != nil {
		a.reading = last.Energy.ReadingKVAh
	}
	if last.Production != nil {
		a.day = truncateToDay(last.TS)
		a.hour = hourOf(last.TS)
		a.planned = last.Production.CumulativePlannedKg
		a.actual = last.Production.CumulativeActualKg
	}
}

// AddConsumption adds one minute of energy and returns the rounded reading.
func (a *Accumulator) AddConsumption(kvah float64) float64 {
	if kvah > 0 {
		a.reading += kvah
	}
	return Round2(a.reading)
}

// Reading returns the rounded KVAH reading.
func (a *Accumulator) Reading() float64 { return Round2(a.reading) }

// AdvanceProduction moves the metal counters to ts and returns the rounded cumulative totals.
// Totals reset on the first sample of a new day and grow once per hour, at the hour's first sample.
func (a *Accumulator) AdvanceProduction(ts time.Time, uniform func(lo, hi float64) float64) (planned, actual float64) {
	if a.production == nil {
		return 0, 0
	}
	if a.day.IsZero() || !sameDay(ts, a.day) {
		a.day = truncateToDay(ts)
		a.hour = time.Time{}
		a.planned = 0
		a.actual = 0
	}
	hourStart := hourOf(ts)
	if !hourStart.Equal(a.hour) {
		a.hour = hourStart
		step := a.production.PlannedPerHourKg
		noise := 0.0
		if uniform != nil && a.production.ActualNoiseKg > 0 {
			noise = uniform(-a.production.ActualNoiseKg, a.production.ActualNoiseKg)
		}
		a.planned += step
		a.actual += step + noise
	}
	return Round2(a.planned), Round2(a.actual)
}

func hourOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
