package postgres

import (
	"context"
	"database/sql"
	"errors"

	telemetry "foundry-telemetry/internal/telemetry/domain"
)

// RunRepository persists the generator run ledger.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository constructs a repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// StartRun inserts a running ledger entry.
func (r *RunRepository) StartRun(ctx context.Context, run telemetry.Run) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	if run.ID == "" {
		return errors.New("run repo: empty run id")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO generator_runs (
	id, station, phase, status, rows_written, error, started_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (id) DO NOTHING`,
		run.ID, run.Station, string(run.Phase), string(run.Status), run.RowsWritten, run.Error, run.StartedAt.UTC())
	return err
}

// FinishRun stores the outcome of a run.
func (r *RunRepository) FinishRun(ctx context.Context, run telemetry.Run) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	finishedAt := sql.NullTime{}
	if run.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: run.FinishedAt.UTC(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE generator_runs
SET status = $1, rows_written = $2, error = $3, finished_at = $4
WHERE id = $5`, string(run.Status), run.RowsWritten, run.Error, finishedAt, run.ID)
	return err
}

// ListRuns returns the newest runs first, optionally filtered by station.
func (r *RunRepository) ListRuns(ctx context.Context, station string, limit int) ([]telemetry.Run, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run repo: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, station, phase, status, rows_written, error, started_at, finished_at
FROM generator_runs
WHERE $1 = '' OR station = $1
ORDER BY started_at DESC
LIMIT $2`, station, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []telemetry.Run
	for rows.Next() {
		var run telemetry.Run
		var phase, status string
		var finishedAt sql.NullTime
		if err := rows.Scan(
			&run.ID,
			&run.Station,
			&phase,
			&status,
			&run.RowsWritten,
			&run.Error,
			&run.StartedAt,
			&finishedAt,
		); err != nil {
			return nil, err
		}
		run.Phase = telemetry.RunPhase(phase)
		run.Status = telemetry.RunStatus(status)
		run.StartedAt = run.StartedAt.UTC()
		if finishedAt.Valid {
			t := finishedAt.Time.UTC()
			run.FinishedAt = &t
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
