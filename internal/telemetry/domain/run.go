package telemetry

import (
	"context"
	"time"
)

// RunPhase names a unit phase recorded in the run ledger.
type RunPhase string

const (
	PhaseBackfill RunPhase = "backfill"
	PhaseLive     RunPhase = "live"
	PhaseRealtime RunPhase = "realtime"
)

// RunStatus is the ledger status of a phase.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is one ledger entry.
type Run struct {
	ID          string     `json:"id"`
	Station     string     `json:"station"`
	Phase       RunPhase   `json:"phase"`
	Status      RunStatus  `json:"status"`
	RowsWritten int        `json:"rows_written"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// Finish closes the run with the outcome of err.
func (r *Run) Finish(at time.Time, rows int, err error) {
	r.RowsWritten = rows
	r.FinishedAt = &at
	if err != nil {
		r.Status = RunFailed
		r.Error = err.Error()
		return
	}
	r.Status = RunSucceeded
}

// RunRecorder persists ledger entries.
type RunRecorder interface {
	StartRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, station string, limit int) ([]Run, error)
}
