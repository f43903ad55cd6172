package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned when a station or schedule configuration is malformed.
	ErrConfig = errors.New("telemetry: invalid config")
	// ErrSinkUnavailable is returned when the persistence sink cannot be reached.
	ErrSinkUnavailable = errors.New("telemetry: sink unavailable")
	// ErrScheduleViolation is returned when a timestamp outside the window reaches the sampler.
	ErrScheduleViolation = errors.New("telemetry: timestamp outside schedule window")
	// ErrRowNotFound is returned when a table has no persisted rows.
	ErrRowNotFound = errors.New("telemetry: row not found")
	// ErrInvalidRow is returned when a row cannot be persisted as given.
	ErrInvalidRow = errors.New("telemetry: invalid row")
)

// PartialWriteError reports the exact row a write failed on after retries were exhausted.
// Rows before it in the same path stay committed.
type PartialWriteError struct {
	Table    string
	Row      Row
	Attempts int
	Err      error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("telemetry: write to %s failed at id=%d ts=%s after %d attempt(s): %v",
		e.Table, e.Row.ID, e.Row.TS.Format("2006-01-02 15:04"), e.Attempts, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// RowWriteError marks the position of the row a batch insert failed on.
type RowWriteError struct {
	Index int
	Err   error
}

func (e *RowWriteError) Error() string {
	return fmt.Sprintf("telemetry: row %d: %v", e.Index, e.Err)
}

func (e *RowWriteError) Unwrap() error { return e.Err }
