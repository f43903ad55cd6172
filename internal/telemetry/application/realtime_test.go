package application

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	telemetry "foundry-telemetry/internal/telemetry/domain"
	"foundry-telemetry/internal/telemetry/infrastructure/memory"
)

func realtimeSettings() RealtimeConfig {
	return RealtimeConfig{Enabled: true, SampleInterval: time.Minute, PollInterval: 30 * time.Second, ErrorBackoff: 10 * time.Second}
}

func TestRealtimeLoopTransitions(t *testing.T) {
	store := memory.NewStore()
	table := store.Table("melting_energy")
	sink := &flakySink{RowSink: table, failInserts: 1}
	clock := newFakeClock(time.Date(2025, 3, 3, 8, 58, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock.hook = func(n int) {
		if n == 8 {
			cancel()
		}
	}

	window := testWindow(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), time.Time{})
	loop, err := NewRealtimeLoop(meltingConfig(), window, sink, clock, rand.New(rand.NewPCG(1, 2)), realtimeSettings(), discardLogger())
	require.NoError(t, err)

	var mu sync.Mutex
	var states []LoopState
	loop.OnStateChange(func(s LoopState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, loop.Run(ctx))

	assert.Equal(t, []LoopState{StateIdleWaiting, StateGenerating, StateErrorBackoff, StateGenerating}, states)
	assert.Equal(t, []time.Duration{
		30 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second,
		10 * time.Second,
		50 * time.Second, time.Minute, time.Minute,
	}, clock.Sleeps())

	rows := table.Rows()
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, int64(i+1), row.ID)
		assert.Equal(t, time.Date(2025, 3, 3, 9, i, 0, 0, time.UTC), row.TS)
		assert.Equal(t, "HT_20250303_001", row.HeatNo)
	}
	assert.Equal(t, 3, loop.Written())
}

// slowSink spends latency of fake time on every insert.
type slowSink struct {
	telemetry.RowSink
	clock   *fakeClock
	latency time.Duration
}

func (s *slowSink) Insert(ctx context.Context, row telemetry.Row) error {
	s.clock.advance(s.latency)
	return s.RowSink.Insert(ctx, row)
}

func TestRealtimeLoopStaysOnMinuteGrid(t *testing.T) {
	store := memory.NewStore()
	table := store.Table("sand_energy")
	clock := newFakeClock(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock.hook = func(n int) {
		if n == 70 {
			cancel()
		}
	}

	window := testWindow(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), time.Time{})
	sink := &slowSink{RowSink: table, clock: clock, latency: 2 * time.Second}
	loop, err := NewRealtimeLoop(sandConfig(), window, sink, clock, rand.New(rand.NewPCG(9, 10)), realtimeSettings(), discardLogger())
	require.NoError(t, err)
	require.NoError(t, loop.Run(ctx))

	for _, d := range clock.Sleeps() {
		assert.Equal(t, 58*time.Second, d)
	}
	rows := table.Rows()
	require.Len(t, rows, 70)
	for i, row := range rows {
		assert.Equal(t, time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC).Add(time.Duration(i)*time.Minute), row.TS)
	}
}

func TestRealtimeLoopSkipsPersistedMinute(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := memory.NewStore()
	table := store.Table("melting_energy")
	require.NoError(t, table.Insert(ctx, telemetry.Row{
		ID:      5,
		Station: "Melting_Energy",
		TS:      time.Date(2025, 3, 3, 9, 5, 0, 0, time.UTC),
		HeatNo:  "HT_20250303_001",
		Energy:  &telemetry.EnergyReading{PowerKW: 360, PowerFactor: 0.9, ReadingKVAh: 100, ConsumptionKVAh: 6, Status: telemetry.StatusWorking, Notification: telemetry.PFNormal},
	}))

	clock := newFakeClock(time.Date(2025, 3, 3, 9, 5, 30, 0, time.UTC))
	clock.hook = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	window := testWindow(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), time.Time{})
	loop, err := NewRealtimeLoop(meltingConfig(), window, table, clock, rand.New(rand.NewPCG(3, 4)), realtimeSettings(), discardLogger())
	require.NoError(t, err)
	require.NoError(t, loop.Run(ctx))

	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, int64(6), rows[1].ID)
	assert.Equal(t, time.Date(2025, 3, 3, 9, 6, 0, 0, time.UTC), rows[1].TS)
	assert.GreaterOrEqual(t, rows[1].Energy.ReadingKVAh, 100.0)
}

func TestRealtimeLoopCircuitBreaker(t *testing.T) {
	store := memory.NewStore()
	sink := &flakySink{RowSink: store.Table("sand_energy"), failAlways: true}
	clock := newFakeClock(time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC))
	settings := realtimeSettings()
	settings.MaxConsecutiveErrors = 3

	window := testWindow(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), time.Time{})
	loop, err := NewRealtimeLoop(sandConfig(), window, sink, clock, rand.New(rand.NewPCG(5, 6)), settings, discardLogger())
	require.NoError(t, err)

	err = loop.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooManyErrors))
	assert.Equal(t, StateErrorBackoff, loop.State())
	assert.Equal(t, 3, sink.Calls())
	assert.Len(t, clock.Sleeps(), 2)
}

func TestRealtimeLoopIdleUntilCancelled(t *testing.T) {
	store := memory.NewStore()
	// Sunday is not a working day.
	clock := newFakeClock(time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	clock.hook = func(n int) {
		if n == 5 {
			cancel()
		}
	}
	window := testWindow(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	loop, err := NewRealtimeLoop(sandConfig(), window, store.Table("sand_energy"), clock, rand.New(rand.NewPCG(7, 8)), realtimeSettings(), discardLogger())
	require.NoError(t, err)

	require.NoError(t, loop.Run(ctx))
	assert.Equal(t, StateIdleWaiting, loop.State())
	assert.Empty(t, store.Ops())
}

func TestNewRealtimeLoopRejectsBadIntervals(t *testing.T) {
	store := memory.NewStore()
	settings := realtimeSettings()
	settings.PollInterval = 0
	_, err := NewRealtimeLoop(sandConfig(), telemetry.ScheduleWindow{}, store.Table("sand_energy"), nil, rand.New(rand.NewPCG(1, 1)), settings, nil)
	assert.ErrorIs(t, err, telemetry.ErrConfig)
}
