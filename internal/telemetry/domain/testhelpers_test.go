package telemetry

import (
	"math/rand/v2"
	"time"
)

var workWeek = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func meltingConfig() StationConfig {
	return StationConfig{
		Name:        "melting",
		Label:       "Melting_Energy",
		Table:       "melting_energy",
		HeatBatches: true,
		Energy: &EnergyProfile{
			Status:     StatusProbabilities{Working: 0.90, Idle: 0.05, Maintenance: 0.05},
			PowerRange: Range{Min: 350, Max: 400},
			IdlePower:  Range{Min: 35, Max: 70},
			PF: PFDistribution{
				Low:    PFBand{Min: 0.64, Max: 0.69, Mass: 0.10},
				High:   PFBand{Min: 0.96, Max: 0.99, Mass: 0.10},
				Normal: PFBand{Min: 0.70, Max: 0.95, Mass: 0.80},
			},
			PFThresholds: PFThresholds{Low: 0.70, High: 0.95},
		},
	}
}

func productionConfig() StationConfig {
	return StationConfig{
		Name:        "melting_production",
		Label:       "Melting_Production",
		Table:       "melting_production",
		HeatBatches: true,
		Production: &ProductionProfile{
			PlannedPerHourKg: 300,
			ActualNoiseKg:    5,
			Temperature:      Range{Min: 1000, Max: 1400},
			Composition:      Composition{FePct: 75, CPct: 10, CrPct: 5, NiPct: 5},
		},
	}
}
