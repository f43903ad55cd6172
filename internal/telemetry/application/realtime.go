package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"foundry-telemetry/internal/observability/metrics"
	telemetry "foundry-telemetry/internal/telemetry/domain"
)

// LoopState is the real-time loop state.
type LoopState string

const (
	StateIdleWaiting  LoopState = "idle-waiting"
	StateGenerating   LoopState = "generating"
	StateErrorBackoff LoopState = "error-backoff"
)

var loopStates = []string{string(StateIdleWaiting), string(StateGenerating), string(StateErrorBackoff)}

// ErrTooManyErrors is returned when the loop trips its consecutive error limit.
var ErrTooManyErrors = errors.New("realtime: too many consecutive errors")

// RealtimeLoop writes one row per in-window minute for a station until cancelled.
type RealtimeLoop struct {
	cfg      telemetry.StationConfig
	window   telemetry.ScheduleWindow
	sink     telemetry.RowSink
	clock    telemetry.Clock
	rng      *rand.Rand
	settings RealtimeConfig
	logger   *log.Logger

	mu          sync.Mutex
	state       LoopState
	gen         *telemetry.Generator
	consecutive int
	written     int
	observer    func(LoopState)
}

// NewRealtimeLoop builds a loop over an open-ended or closed window.
func NewRealtimeLoop(cfg telemetry.StationConfig, window telemetry.ScheduleWindow, sink telemetry.RowSink, clock telemetry.Clock, rng *rand.Rand, settings RealtimeConfig, logger *log.Logger) (*RealtimeLoop, error) {
	if sink == nil {
		return nil, errors.New("realtime: nil sink")
	}
	if rng == nil {
		return nil, errors.New("realtime: nil rng")
	}
	if settings.SampleInterval <= 0 || settings.PollInterval <= 0 || settings.ErrorBackoff <= 0 {
		return nil, fmt.Errorf("%w: realtime intervals must be positive", telemetry.ErrConfig)
	}
	if clock == nil {
		clock = telemetry.SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RealtimeLoop{
		cfg:      cfg,
		window:   window,
		sink:     sink,
		clock:    clock,
		rng:      rng,
		settings: settings,
		logger:   logger,
	}, nil
}

// OnStateChange registers a hook called on every state transition.
func (l *RealtimeLoop) OnStateChange(fn func(LoopState)) {
	l.mu.Lock()
	l.observer = fn
	l.mu.Unlock()
}

// State returns the current state, empty before Run.
func (l *RealtimeLoop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Written returns the rows committed by this loop.
func (l *RealtimeLoop) Written() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written
}

// Run drives the loop. Cancellation returns nil; tripping the error limit returns ErrTooManyErrors.
func (l *RealtimeLoop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		ts := minuteOf(l.clock.Now(), l.window.Location)
		if !l.window.Contains(ts) {
			l.setState(StateIdleWaiting)
			if err := l.clock.Sleep(ctx, l.settings.PollInterval); err != nil {
				return nil
			}
			continue
		}

		l.setState(StateGenerating)
		if err := l.tick(ctx, ts); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.mu.Lock()
			l.consecutive++
			consecutive := l.consecutive
			l.gen = nil
			l.mu.Unlock()
			metrics.IncWriteError(l.cfg.Name, metrics.PathRealtime)
			l.logger.Printf("realtime %s: write failed at %s (consecutive=%d): %v", l.cfg.Name, ts.Format(time.DateTime), consecutive, err)
			l.setState(StateErrorBackoff)
			if limit := l.settings.MaxConsecutiveErrors; limit > 0 && consecutive >= limit {
				return fmt.Errorf("%w: %s after %d: %v", ErrTooManyErrors, l.cfg.Name, consecutive, err)
			}
			if err := l.clock.Sleep(ctx, l.settings.ErrorBackoff); err != nil {
				return nil
			}
			continue
		}
		l.mu.Lock()
		l.consecutive = 0
		l.mu.Unlock()
		// Sleep to the next sample boundary so write latency does not drift the grid.
		wait := ts.Add(l.settings.SampleInterval).Sub(l.clock.Now())
		if wait <= 0 {
			continue
		}
		if err := l.clock.Sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// tick writes the row for ts unless that minute is already persisted.
func (l *RealtimeLoop) tick(ctx context.Context, ts time.Time) error {
	gen, err := l.generator(ctx)
	if err != nil {
		return err
	}
	if last := gen.LastTS(); !last.IsZero() && !ts.After(last) {
		return nil
	}
	row, err := gen.Row(ts)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := l.sink.Insert(ctx, row); err != nil {
		metrics.ObserveWrite(metrics.PathRealtime, metrics.ResultError, time.Since(start))
		return err
	}
	metrics.ObserveWrite(metrics.PathRealtime, metrics.ResultSuccess, time.Since(start))
	metrics.AddRowsWritten(l.cfg.Name, metrics.PathRealtime, 1)
	l.mu.Lock()
	l.written++
	l.mu.Unlock()
	return nil
}

// generator rebuilds from the sink after start or a failed write so counters never run
// ahead of what is persisted.
func (l *RealtimeLoop) generator(ctx context.Context) (*telemetry.Generator, error) {
	l.mu.Lock()
	gen := l.gen
	l.mu.Unlock()
	if gen != nil {
		return gen, nil
	}
	maxID, err := l.sink.MaxID(ctx)
	if err != nil {
		return nil, err
	}
	last, err := l.sink.LastRow(ctx)
	if err != nil && !errors.Is(err, telemetry.ErrRowNotFound) {
		return nil, err
	}
	gen, err = telemetry.NewGenerator(l.cfg, l.window, l.rng, maxID, last)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.gen = gen
	l.mu.Unlock()
	return gen, nil
}

func (l *RealtimeLoop) setState(state LoopState) {
	l.mu.Lock()
	changed := l.state != state
	l.state = state
	observer := l.observer
	l.mu.Unlock()
	if !changed {
		return
	}
	metrics.SetLoopState(l.cfg.Name, string(state), loopStates)
	if observer != nil {
		observer(state)
	}
}

func minuteOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}
