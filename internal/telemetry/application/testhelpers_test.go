package application

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	telemetry "foundry-telemetry/internal/telemetry/domain"
)

var workWeek = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// fakeClock advances on every Sleep. hook runs after each sleep with the sleep count.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	hook   func(n int)
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	n := len(c.sleeps)
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

// advance moves time forward without recording a sleep.
func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// flakySink fails the next failInserts/failBatches calls with ErrSinkUnavailable.
type flakySink struct {
	telemetry.RowSink
	mu          sync.Mutex
	failInserts int
	failBatches int
	failAlways  bool
	calls       int
}

func (s *flakySink) fail(counter *int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAlways {
		return true
	}
	if *counter > 0 {
		*counter--
		return true
	}
	return false
}

func (s *flakySink) Insert(ctx context.Context, row telemetry.Row) error {
	if s.fail(&s.failInserts) {
		return telemetry.ErrSinkUnavailable
	}
	return s.RowSink.Insert(ctx, row)
}

func (s *flakySink) InsertBatch(ctx context.Context, rows []telemetry.Row) error {
	if s.fail(&s.failBatches) {
		return telemetry.ErrSinkUnavailable
	}
	return s.RowSink.InsertBatch(ctx, rows)
}

func (s *flakySink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testWindow(start, end time.Time) telemetry.ScheduleWindow {
	w, err := telemetry.NewScheduleWindow(start, end, workWeek, []int{9, 10, 11, 12, 13, 14, 15, 16, 17}, time.UTC)
	if err != nil {
		panic(err)
	}
	return w
}

func testRetry(clock telemetry.Clock) RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Initial: time.Second, MaxInterval: 4 * time.Second, Clock: clock, Logger: discardLogger()}
}

func meltingConfig() telemetry.StationConfig {
	return telemetry.StationConfig{
		Name:        "melting",
		Label:       "Melting_Energy",
		Table:       "melting_energy",
		HeatBatches: true,
		Energy: &telemetry.EnergyProfile{
			Status:     telemetry.StatusProbabilities{Working: 0.90, Idle: 0.05, Maintenance: 0.05},
			PowerRange: telemetry.Range{Min: 350, Max: 400},
			IdlePower:  telemetry.Range{Min: 35, Max: 70},
			PF: telemetry.PFDistribution{
				Low:    telemetry.PFBand{Min: 0.64, Max: 0.69, Mass: 0.10},
				High:   telemetry.PFBand{Min: 0.96, Max: 0.99, Mass: 0.10},
				Normal: telemetry.PFBand{Min: 0.70, Max: 0.95, Mass: 0.80},
			},
			PFThresholds: telemetry.PFThresholds{Low: 0.70, High: 0.95},
		},
	}
}

func sandConfig() telemetry.StationConfig {
	return telemetry.StationConfig{
		Name:  "sand",
		Label: "SandPlant_Energy",
		Table: "sand_energy",
		Energy: &telemetry.EnergyProfile{
			Status:     telemetry.StatusProbabilities{Working: 0.8, Idle: 0.15, Maintenance: 0.05},
			PowerRange: telemetry.Range{Min: 5, Max: 10},
			IdlePower:  telemetry.Range{Min: 0.5, Max: 1},
			PF: telemetry.PFDistribution{
				Low:    telemetry.PFBand{Min: 0.79, Max: 0.84, Mass: 0.07},
				High:   telemetry.PFBand{Min: 0.96, Max: 0.99, Mass: 0.02},
				Normal: telemetry.PFBand{Min: 0.85, Max: 0.95, Mass: 0.91},
			},
			PFThresholds: telemetry.PFThresholds{Low: 0.85, High: 0.95},
		},
	}
}
