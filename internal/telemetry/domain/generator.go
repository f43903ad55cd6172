package telemetry

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Generator assembles rows for one unit: sample, advance counters, assign the next id.
type Generator struct {
	cfg     StationConfig
	window  ScheduleWindow
	sampler *Sampler
	acc     *Accumulator
	nextID  int64
	lastTS  time.Time
}

// NewGenerator builds a generator continuing after last (nil for an empty table).
// maxID is the highest persisted id; new rows start at maxID+1.
func NewGenerator(cfg StationConfig, window ScheduleWindow, rng *rand.Rand, maxID int64, last *Row) (*Generator, error) {
	sampler, err := NewSampler(cfg, rng)
	if err != nil {
		return nil, err
	}
	if maxID < 0 {
		return nil, fmt.Errorf("%w: negative max id", ErrInvalidRow)
	}
	acc := NewAccumulator(cfg)
	acc.Seed(last)
	g := &Generator{
		cfg:     cfg,
		window:  window,
		sampler: sampler,
		acc:     acc,
		nextID:  maxID + 1,
	}
	if last != nil {
		g.lastTS = last.TS
	}
	return g, nil
}

// LastTS is the timestamp of the last row produced or seeded.
func (g *Generator) LastTS() time.Time { return g.lastTS }

// NextID is the id the next row will carry.
func (g *Generator) NextID() int64 { return g.nextID }

// Row produces the row for ts. ts must be in the window and later than LastTS.
func (g *Generator) Row(ts time.Time) (Row, error) {
	if !g.window.Contains(ts) {
		return Row{}, fmt.Errorf("%w: %s at %s", ErrScheduleViolation, g.cfg.Name, ts.Format(time.RFC3339))
	}
	if !g.lastTS.IsZero() && !ts.After(g.lastTS) {
		return Row{}, fmt.Errorf("%w: %s at %s not after %s", ErrScheduleViolation, g.cfg.Name, ts.Format(time.RFC3339), g.lastTS.Format(time.RFC3339))
	}

	row := Row{
		ID:      g.nextID,
		Station: g.cfg.Label,
		TS:      ts,
	}
	if g.cfg.HeatBatches {
		row.HeatNo, _ = g.window.HeatID(ts)
	}

	if g.cfg.IsProduction() {
		sample, err := g.sampler.SampleProduction(ts)
		if err != nil {
			return Row{}, err
		}
		planned, actual := g.acc.AdvanceProduction(ts, g.sampler.Uniform)
		row.Production = &ProductionReading{
			FurnaceTemperature:  sample.FurnaceTemperature,
			Composition:         sample.Composition,
			CumulativePlannedKg: planned,
			CumulativeActualKg:  actual,
		}
	} else {
		sample, err := g.sampler.Sample(ts)
		if err != nil {
			return Row{}, err
		}
		row.Energy = &EnergyReading{
			PowerFactor:     sample.PowerFactor,
			PowerKW:         sample.PowerKW,
			ReadingKVAh:     g.acc.AddConsumption(sample.RawConsumption),
			ConsumptionKVAh: sample.ConsumptionKVAh,
			Status:          sample.Status,
			Notification:    sample.Notification,
		}
	}

	g.nextID++
	g.lastTS = ts
	return row, nil
}

// Series enumerates the window after LastTS and collects every row.
func (g *Generator) Series() ([]Row, error) {
	enum, err := EnumerateAfter(g.window, g.lastTS)
	if err != nil {
		return nil, err
	}
	var rows []Row
	for {
		slot, ok := enum.Next()
		if !ok {
			return rows, nil
		}
		row, err := g.Row(slot.TS)
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}
