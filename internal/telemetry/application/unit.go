package application

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"foundry-telemetry/internal/observability/metrics"
	telemetry "foundry-telemetry/internal/telemetry/domain"
)

// UnitOptions carries the shared settings every station unit runs with.
type UnitOptions struct {
	Window   telemetry.ScheduleWindow
	Live     LiveConfig
	Realtime RealtimeConfig
	Retry    RetryConfig
	Seed     uint64
	Clock    telemetry.Clock
	Runs     telemetry.RunRecorder
	Logger   *log.Logger
}

// StationUnit owns one station table: backfill, paced replay of today, then real time.
type StationUnit struct {
	cfg    telemetry.StationConfig
	sink   telemetry.RowSink
	opts   UnitOptions
	rng    *rand.Rand
	retry  RetryPolicy
	loader *Loader
	logger *log.Logger
}

// NewStationUnit builds a unit for cfg writing to sink.
func NewStationUnit(cfg telemetry.StationConfig, sink telemetry.RowSink, opts UnitOptions) (*StationUnit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = telemetry.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	retry := NewRetryPolicy(opts.Retry, opts.Clock, opts.Logger)
	loader, err := NewLoader(cfg.Name, cfg.Table, sink, retry, opts.Clock, opts.Live.Pace, opts.Logger)
	if err != nil {
		return nil, err
	}
	return &StationUnit{
		cfg:    cfg,
		sink:   sink,
		opts:   opts,
		rng:    UnitRNG(opts.Seed, cfg.Name),
		retry:  retry,
		loader: loader,
		logger: opts.Logger,
	}, nil
}

// Name returns the unit key.
func (u *StationUnit) Name() string { return u.cfg.Name }

// Table returns the destination table.
func (u *StationUnit) Table() string { return u.cfg.Table }

// Backfill generates the series up to the cutover day, bulk loads rows before it and returns
// every row of the cutover day for the paced path.
func (u *StationUnit) Backfill(ctx context.Context, cutover time.Time) ([]telemetry.Row, error) {
	run := u.startRun(ctx, telemetry.PhaseBackfill)
	start := time.Now()

	live, written, err := u.backfill(ctx, cutover)

	u.finishRun(ctx, run, written, err)
	metrics.ObservePhase(u.cfg.Name, string(telemetry.PhaseBackfill), resultOf(err), time.Since(start))
	if err != nil {
		return nil, err
	}
	return live, nil
}

func (u *StationUnit) backfill(ctx context.Context, cutover time.Time) ([]telemetry.Row, int, error) {
	var maxID int64
	var last *telemetry.Row
	err := u.retry.Start(ctx, Task{
		Name: u.cfg.Name + ".resume",
		Exec: func(ctx context.Context) error {
			var err error
			if maxID, err = u.sink.MaxID(ctx); err != nil {
				return err
			}
			last, err = u.sink.LastRow(ctx)
			if errors.Is(err, telemetry.ErrRowNotFound) {
				last, err = nil, nil
			}
			return err
		},
	})
	if err != nil {
		return nil, 0, err
	}

	window := u.opts.Window
	if window.End.IsZero() || window.End.After(cutover) {
		window = window.WithEnd(cutover)
	}
	gen, err := telemetry.NewGenerator(u.cfg, window, u.rng, maxID, last)
	if err != nil {
		return nil, 0, err
	}
	rows, err := gen.Series()
	if err != nil {
		return nil, 0, err
	}

	split := Split(rows, cutover)
	if len(split.Dropped) > 0 {
		u.logger.Printf("unit %s: dropped %d row(s) after cutover day %s", u.cfg.Name, len(split.Dropped), cutover.Format(time.DateOnly))
	}
	u.logger.Printf("unit %s: resume after id=%d, historical=%d live=%d", u.cfg.Name, maxID, len(split.Historical), len(split.Live))

	result, err := u.loader.LoadHistorical(ctx, split.Historical)
	if err != nil {
		return nil, result.Written, err
	}
	return split.Live, result.Written, nil
}

// Live replays the cutover day's rows at the configured pace, then runs the real-time loop
// until ctx is cancelled.
func (u *StationUnit) Live(ctx context.Context, rows []telemetry.Row) error {
	run := u.startRun(ctx, telemetry.PhaseLive)
	start := time.Now()
	result, err := u.loader.LoadLive(ctx, rows)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	u.finishRun(ctx, run, result.Written, err)
	metrics.ObservePhase(u.cfg.Name, string(telemetry.PhaseLive), resultOf(err), time.Since(start))
	if err != nil || ctx.Err() != nil || !u.opts.Realtime.Enabled {
		return err
	}

	loop, err := NewRealtimeLoop(u.cfg, u.opts.Window, u.sink, u.opts.Clock, u.rng, u.opts.Realtime, u.logger)
	if err != nil {
		return err
	}
	run = u.startRun(ctx, telemetry.PhaseRealtime)
	start = time.Now()
	err = loop.Run(ctx)
	u.finishRun(context.WithoutCancel(ctx), run, loop.Written(), err)
	metrics.ObservePhase(u.cfg.Name, string(telemetry.PhaseRealtime), resultOf(err), time.Since(start))
	return err
}

func (u *StationUnit) startRun(ctx context.Context, phase telemetry.RunPhase) *telemetry.Run {
	run := &telemetry.Run{
		ID:        uuid.NewString(),
		Station:   u.cfg.Name,
		Phase:     phase,
		Status:    telemetry.RunRunning,
		StartedAt: u.opts.Clock.Now(),
	}
	if u.opts.Runs == nil {
		return run
	}
	if err := u.opts.Runs.StartRun(ctx, *run); err != nil {
		u.logger.Printf("unit %s: run ledger start %s error: %v", u.cfg.Name, phase, err)
	}
	return run
}

func (u *StationUnit) finishRun(ctx context.Context, run *telemetry.Run, rows int, err error) {
	run.Finish(u.opts.Clock.Now(), rows, err)
	if u.opts.Runs == nil {
		return
	}
	if err := u.opts.Runs.FinishRun(context.WithoutCancel(ctx), *run); err != nil {
		u.logger.Printf("unit %s: run ledger finish %s error: %v", u.cfg.Name, run.Phase, err)
	}
}

// UnitRNG derives a per-unit source from the process seed and the unit name.
// A zero seed draws a random one.
func UnitRNG(seed uint64, name string) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

func resultOf(err error) string {
	if err != nil {
		return metrics.ResultError
	}
	return metrics.ResultSuccess
}
