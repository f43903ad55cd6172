package telemetry

import (
	"math"
	"regexp"
)

const massTolerance = 1e-6

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Range is a closed interval [Min, Max].
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether v lies within the range.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// PFBand is a power factor band with its probability mass.
type PFBand struct {
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Mass float64 `yaml:"mass"`
}

// PFDistribution is the three-band power factor distribution.
type PFDistribution struct {
	Low    PFBand `yaml:"low"`
	High   PFBand `yaml:"high"`
	Normal PFBand `yaml:"normal"`
}

// StatusProbabilities is the categorical distribution of machine status.
type StatusProbabilities struct {
	Working     float64 `yaml:"working"`
	Idle        float64 `yaml:"idle"`
	Maintenance float64 `yaml:"maintenance"`
}

// PFThresholds classify a power factor into Low/Normal/High.
type PFThresholds struct {
	Low  float64 `yaml:"low"`
	High float64 `yaml:"high"`
}

// EnergyProfile drives the electrical sample generator.
type EnergyProfile struct {
	Status       StatusProbabilities `yaml:"status"`
	PowerRange   Range               `yaml:"power_kw"`
	IdlePower    Range               `yaml:"idle_power_kw"`
	PF           PFDistribution      `yaml:"power_factor"`
	PFThresholds PFThresholds        `yaml:"pf_thresholds"`
}

// ProductionProfile drives the melting production generator.
type ProductionProfile struct {
	PlannedPerHourKg float64     `yaml:"planned_per_hour_kg"`
	ActualNoiseKg    float64     `yaml:"actual_noise_kg"`
	Temperature      Range       `yaml:"furnace_temperature_c"`
	Composition      Composition `yaml:"composition"`
}

// StationConfig is the immutable configuration of one generation unit.
type StationConfig struct {
	Name        string             `yaml:"name"`
	Label       string             `yaml:"label"`
	Table       string             `yaml:"table"`
	HeatBatches bool               `yaml:"heat_batches"`
	Energy      *EnergyProfile     `yaml:"energy"`
	Production  *ProductionProfile `yaml:"production"`
}

// IsProduction reports whether the unit emits production rows.
func (c StationConfig) IsProduction() bool { return c.Production != nil }

// Validate fails with ErrConfig when the configuration cannot drive generation.
func (c StationConfig) Validate() error {
	if c.Name == "" {
		return configErrorf("station name required")
	}
	if c.Label == "" {
		return configErrorf("station %s: label required", c.Name)
	}
	if !tableNamePattern.MatchString(c.Table) {
		return configErrorf("station %s: invalid table name %q", c.Name, c.Table)
	}
	if (c.Energy == nil) == (c.Production == nil) {
		return configErrorf("station %s: exactly one of energy or production profile required", c.Name)
	}
	if c.Energy != nil {
		return c.Energy.validate(c.Name)
	}
	return c.Production.validate(c.Name)
}

func (p *EnergyProfile) validate(name string) error {
	s := p.Status
	if s.Working < 0 || s.Idle < 0 || s.Maintenance < 0 {
		return configErrorf("station %s: negative status probability", name)
	}
	if !massesSumToOne(s.Working, s.Idle, s.Maintenance) {
		return configErrorf("station %s: status probabilities sum to %.6f", name, s.Working+s.Idle+s.Maintenance)
	}
	if err := validateRange(name, "power_kw", p.PowerRange); err != nil {
		return err
	}
	if err := validateRange(name, "idle_power_kw", p.IdlePower); err != nil {
		return err
	}
	for label, band := range map[string]PFBand{"low": p.PF.Low, "high": p.PF.High, "normal": p.PF.Normal} {
		if band.Mass < 0 {
			return configErrorf("station %s: pf band %s has negative mass", name, label)
		}
		if band.Min <= 0 || band.Max < band.Min {
			return configErrorf("station %s: pf band %s has invalid bounds [%.2f, %.2f]", name, label, band.Min, band.Max)
		}
	}
	if !massesSumToOne(p.PF.Low.Mass, p.PF.High.Mass, p.PF.Normal.Mass) {
		return configErrorf("station %s: pf masses sum to %.6f", name, p.PF.Low.Mass+p.PF.High.Mass+p.PF.Normal.Mass)
	}
	if p.PFThresholds.Low <= 0 || p.PFThresholds.High < p.PFThresholds.Low {
		return configErrorf("station %s: invalid pf thresholds", name)
	}
	return nil
}

func (p *ProductionProfile) validate(name string) error {
	if p.PlannedPerHourKg <= 0 {
		return configErrorf("station %s: planned_per_hour_kg must be > 0", name)
	}
	if p.ActualNoiseKg < 0 || p.ActualNoiseKg >= p.PlannedPerHourKg {
		return configErrorf("station %s: actual_noise_kg must be in [0, planned_per_hour_kg)", name)
	}
	if err := validateRange(name, "furnace_temperature_c", p.Temperature); err != nil {
		return err
	}
	c := p.Composition
	if c.FePct < 0 || c.CPct < 0 || c.CrPct < 0 || c.NiPct < 0 {
		return configErrorf("station %s: negative composition", name)
	}
	return nil
}

func validateRange(name, field string, r Range) error {
	if r.Min < 0 || r.Max <= 0 || r.Max < r.Min {
		return configErrorf("station %s: %s must satisfy 0 <= min <= max, max > 0", name, field)
	}
	return nil
}

func massesSumToOne(values ...float64) bool {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return math.Abs(sum-1) <= massTolerance
}
