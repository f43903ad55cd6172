package application

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand/v2"
	"time"

	"foundry-telemetry/internal/observability/metrics"
	telemetry "foundry-telemetry/internal/telemetry/domain"
)

// Task is a retryable unit of work. Cond decides whether an error is worth another attempt;
// a nil Cond retries every error.
type Task struct {
	Name string
	Exec func(ctx context.Context) error
	Cond func(err error) bool
}

// RetryPolicy retries a task with exponential backoff and optional jitter.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	MaxInterval time.Duration
	Jitter      bool
	Clock       telemetry.Clock
	Logger      *log.Logger
}

// AttemptsError wraps the last task error with the attempt count.
type AttemptsError struct {
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string { return e.Err.Error() }

func (e *AttemptsError) Unwrap() error { return e.Err }

// NewRetryPolicy builds a policy from config.
func NewRetryPolicy(cfg RetryConfig, clock telemetry.Clock, logger *log.Logger) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Initial:     cfg.Initial,
		MaxInterval: cfg.MaxInterval,
		Jitter:      true,
		Clock:       clock,
		Logger:      logger,
	}
}

// Start runs the task until it succeeds, Cond rejects the error, attempts run out or ctx ends.
// A failed run returns *AttemptsError.
func (p RetryPolicy) Start(ctx context.Context, task Task) error {
	clock := p.Clock
	if clock == nil {
		clock = telemetry.SystemClock{}
	}
	for attempt := 1; ; attempt++ {
		err := task.Exec(ctx)
		if err == nil {
			return nil
		}
		if !p.shouldRetry(ctx, attempt, task, err) {
			return &AttemptsError{Attempts: attempt, Err: err}
		}
		interval := p.interval(attempt)
		if p.Logger != nil {
			p.Logger.Printf("retry %s: attempt=%d next_in=%s err=%v", task.Name, attempt, interval, err)
		}
		metrics.IncWriteRetry(task.Name)
		if sleepErr := clock.Sleep(ctx, interval); sleepErr != nil {
			return &AttemptsError{Attempts: attempt, Err: errors.Join(err, sleepErr)}
		}
	}
}

func (p RetryPolicy) shouldRetry(ctx context.Context, attempt int, task Task, err error) bool {
	switch {
	case ctx.Err() != nil,
		errors.Is(err, context.Canceled),
		attempt >= p.MaxAttempts,
		task.Cond != nil && !task.Cond(err):
		return false
	}
	return true
}

func (p RetryPolicy) interval(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second / 8
	}
	maxInterval := p.MaxInterval
	if maxInterval < initial {
		maxInterval = initial
	}
	factor := math.Pow(2, min(
		float64(attempt-1),
		math.Log2(float64(maxInterval)/float64(initial)),
	))
	if p.Jitter {
		factor *= .95 + .1*rand.Float64()
	}
	return time.Duration(factor * float64(initial))
}

// Retryable rejects errors no retry can fix.
func Retryable(err error) bool {
	return !errors.Is(err, telemetry.ErrInvalidRow) &&
		!errors.Is(err, telemetry.ErrConfig) &&
		!errors.Is(err, telemetry.ErrScheduleViolation)
}
