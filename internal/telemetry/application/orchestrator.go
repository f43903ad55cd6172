package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	telemetry "foundry-telemetry/internal/telemetry/domain"
)

// Unit is one independently running station pipeline.
type Unit interface {
	Name() string
	Backfill(ctx context.Context, cutover time.Time) ([]telemetry.Row, error)
	Live(ctx context.Context, rows []telemetry.Row) error
}

// Orchestrator runs every unit's backfill concurrently, waits for all of them, then starts the
// live phase of the units whose backfill succeeded.
type Orchestrator struct {
	units  []Unit
	clock  telemetry.Clock
	logger *log.Logger
}

// NewOrchestrator builds an orchestrator. Unit names must be unique.
func NewOrchestrator(units []Unit, clock telemetry.Clock, logger *log.Logger) (*Orchestrator, error) {
	seen := make(map[string]bool, len(units))
	for _, u := range units {
		if u == nil {
			return nil, errors.New("orchestrator: nil unit")
		}
		if seen[u.Name()] {
			return nil, fmt.Errorf("%w: duplicate unit %s", telemetry.ErrConfig, u.Name())
		}
		seen[u.Name()] = true
	}
	if clock == nil {
		clock = telemetry.SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{units: units, clock: clock, logger: logger}, nil
}

// Run blocks until every unit has finished or ctx is cancelled. Unit failures are joined into
// the returned error; cancellation is not an error.
func (o *Orchestrator) Run(ctx context.Context) error {
	cutover := o.clock.Now()
	o.logger.Printf("orchestrator: phase 1 backfill units=%d cutover=%s", len(o.units), cutover.Format(time.DateTime))

	live := make([][]telemetry.Row, len(o.units))
	errs := make([]error, len(o.units))

	var backfill errgroup.Group
	for i, u := range o.units {
		backfill.Go(func() error {
			rows, err := u.Backfill(ctx, cutover)
			if err != nil {
				errs[i] = fmt.Errorf("%s backfill: %w", u.Name(), err)
				o.logger.Printf("orchestrator: unit %s backfill error: %v", u.Name(), err)
				return nil
			}
			live[i] = rows
			return nil
		})
	}
	_ = backfill.Wait()

	if ctx.Err() != nil {
		return errors.Join(filterCanceled(errs)...)
	}
	o.logger.Printf("orchestrator: phase 2 live")

	var phase2 errgroup.Group
	for i, u := range o.units {
		if errs[i] != nil {
			continue
		}
		phase2.Go(func() error {
			if err := u.Live(ctx, live[i]); err != nil {
				errs[i] = fmt.Errorf("%s live: %w", u.Name(), err)
				o.logger.Printf("orchestrator: unit %s live error: %v", u.Name(), err)
			}
			return nil
		})
	}
	_ = phase2.Wait()
	return errors.Join(filterCanceled(errs)...)
}

func filterCanceled(errs []error) []error {
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}
		out = append(out, err)
	}
	return out
}
