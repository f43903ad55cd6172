package telemetry

import (
	"context"
	"time"
)

// MachineStatus is the simulated state of a station for one minute.
type MachineStatus string

const (
	StatusWorking     MachineStatus = "Working"
	StatusIdle        MachineStatus = "Idle"
	StatusMaintenance MachineStatus = "Maintenance"
)

// PFNotification classifies a power factor against station thresholds.
type PFNotification string

const (
	PFLow    PFNotification = "Low PF"
	PFNormal PFNotification = "Normal PF"
	PFHigh   PFNotification = "High PF"
)

// Sample is one minute of electrical telemetry for a station.
type Sample struct {
	Status       MachineStatus
	PowerKW      float64
	PowerFactor  float64
	Notification PFNotification
	// ConsumptionKVAh is the rounded one-minute energy; RawConsumption feeds the reading.
	ConsumptionKVAh float64
	RawConsumption  float64
}

// ProductionSample is one minute of furnace telemetry for the melting production unit.
type ProductionSample struct {
	FurnaceTemperature float64
	Composition        Composition
}

// Composition holds metal composition percentages. Exactly one component is non-zero per sample.
type Composition struct {
	FePct float64 `yaml:"fe" json:"fe_pct"`
	CPct  float64 `yaml:"c" json:"c_pct"`
	CrPct float64 `yaml:"cr" json:"cr_pct"`
	NiPct float64 `yaml:"ni" json:"ni_pct"`
}

// EnergyReading is the energy variant of a persisted row.
type EnergyReading struct {
	PowerFactor     float64        `json:"power_factor"`
	PowerKW         float64        `json:"power_kw"`
	ReadingKVAh     float64        `json:"reading_kvah"`
	ConsumptionKVAh float64        `json:"consumption_kvah"`
	Status          MachineStatus  `json:"machine_status"`
	Notification    PFNotification `json:"notification"`
}

// ProductionReading is the melting production variant of a persisted row.
type ProductionReading struct {
	FurnaceTemperature  float64 `json:"furnace_temperature"`
	Composition
	CumulativePlannedKg float64 `json:"cumulative_planned_kg"`
	CumulativeActualKg  float64 `json:"cumulative_actual_kg"`
}

// Row is a single persisted record. Exactly one of Energy or Production is set.
type Row struct {
	ID         int64              `json:"id"`
	Station    string             `json:"station"`
	TS         time.Time          `json:"ts"`
	HeatNo     string             `json:"heat_no,omitempty"`
	Energy     *EnergyReading     `json:"energy,omitempty"`
	Production *ProductionReading `json:"production,omitempty"`
}

// Date returns the calendar date of the row in its own location.
func (r Row) Date() time.Time { return truncateToDay(r.TS) }

// Validate checks the row carries exactly one variant and a usable key.
func (r Row) Validate() error {
	if r.ID <= 0 || r.Station == "" || r.TS.IsZero() {
		return ErrInvalidRow
	}
	if (r.Energy == nil) == (r.Production == nil) {
		return ErrInvalidRow
	}
	return nil
}

// RowSink persists rows for one destination table.
type RowSink interface {
	MaxID(ctx context.Context) (int64, error)
	LastRow(ctx context.Context) (*Row, error)
	InsertBatch(ctx context.Context, rows []Row) error
	Insert(ctx context.Context, row Row) error
}

// RowReader loads persisted rows for feed consumers.
type RowReader interface {
	ListRows(ctx context.Context, from, to time.Time) ([]Row, error)
	LastRow(ctx context.Context) (*Row, error)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
