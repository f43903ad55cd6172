package telemetry

import (
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
)

// Sampler draws per-minute samples for a station. It holds no state beyond its config and source.
type Sampler struct {
	cfg StationConfig
	rng *rand.Rand
}

// NewSampler validates cfg and binds it to rng.
func NewSampler(cfg StationConfig, rng *rand.Rand) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, configErrorf("station %s: nil random source", cfg.Name)
	}
	return &Sampler{cfg: cfg, rng: rng}, nil
}

// Config returns the bound station configuration.
func (s *Sampler) Config() StationConfig { return s.cfg }

// Sample draws one electrical sample. The timestamp is unused by the distribution itself.
func (s *Sampler) Sample(_ time.Time) (Sample, error) {
	p := s.cfg.Energy
	if p == nil {
		return Sample{}, configErrorf("station %s: no energy profile", s.cfg.Name)
	}

	status := s.drawStatus(p.Status)
	var power float64
	switch status {
	case StatusWorking:
		power = s.uniform(p.PowerRange.Min, p.PowerRange.Max)
	case StatusIdle:
		power = s.uniform(p.IdlePower.Min, p.IdlePower.Max)
	}

	pf := Round2(s.drawPF(p.PF))
	consumption := power / minutesPerHour
	return Sample{
		Status:          status,
		PowerKW:         Round2(power),
		PowerFactor:     pf,
		Notification:    ClassifyPF(pf, p.PFThresholds),
		ConsumptionKVAh: Round2(consumption),
		RawConsumption:  consumption,
	}, nil
}

// SampleProduction draws furnace temperature and the composition component active at ts.
func (s *Sampler) SampleProduction(ts time.Time) (ProductionSample, error) {
	p := s.cfg.Production
	if p == nil {
		return ProductionSample{}, configErrorf("station %s: no production profile", s.cfg.Name)
	}
	return ProductionSample{
		FurnaceTemperature: Round2(s.uniform(p.Temperature.Min, p.Temperature.Max)),
		Composition:        ActiveComposition(p.Composition, ts.Minute()),
	}, nil
}

// Uniform exposes the bound source for the accumulator's noise draws.
func (s *Sampler) Uniform(lo, hi float64) float64 { return s.uniform(lo, hi) }

func (s *Sampler) drawStatus(p StatusProbabilities) MachineStatus {
	u := s.rng.Float64()
	switch {
	case u < p.Working:
		return StatusWorking
	case u < p.Working+p.Idle:
		return StatusIdle
	default:
		return StatusMaintenance
	}
}

func (s *Sampler) drawPF(d PFDistribution) float64 {
	u := s.rng.Float64()
	switch {
	case u < d.Low.Mass:
		return s.uniform(d.Low.Min, d.Low.Max)
	case u < d.Low.Mass+d.High.Mass:
		return s.uniform(d.High.Min, d.High.Max)
	default:
		return s.uniform(d.Normal.Min, d.Normal.Max)
	}
}

func (s *Sampler) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + s.rng.Float64()*(hi-lo)
}

// ClassifyPF maps a power factor onto the station thresholds.
func ClassifyPF(pf float64, t PFThresholds) PFNotification {
	switch {
	case pf < t.Low:
		return PFLow
	case pf > t.High:
		return PFHigh
	default:
		return PFNormal
	}
}

// ActiveComposition keeps only the component owned by the quarter of the hour minute falls in.
func ActiveComposition(c Composition, minute int) Composition {
	switch minute / 15 {
	case 0:
		return Composition{FePct: c.FePct}
	case 1:
		return Composition{CPct: c.CPct}
	case 2:
		return Composition{CrPct: c.CrPct}
	default:
		return Composition{NiPct: c.NiPct}
	}
}

// Round2 rounds half away from zero to two decimal digits.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
