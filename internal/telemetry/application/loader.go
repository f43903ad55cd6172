package application

import (
	"context"
	"errors"
	"log"
	"time"

	"foundry-telemetry/internal/observability/metrics"
	telemetry "foundry-telemetry/internal/telemetry/domain"
)

// Loader writes split segments to one station's sink.
type Loader struct {
	station string
	table   string
	sink    telemetry.RowSink
	retry   RetryPolicy
	clock   telemetry.Clock
	pace    time.Duration
	logger  *log.Logger
}

// LoadResult reports what a load path committed.
type LoadResult struct {
	Written int
	Last    *telemetry.Row
}

// NewLoader builds a loader for one station table.
func NewLoader(station, table string, sink telemetry.RowSink, retry RetryPolicy, clock telemetry.Clock, pace time.Duration, logger *log.Logger) (*Loader, error) {
	if sink == nil {
		return nil, errors.New("loader: nil sink")
	}
	if clock == nil {
		clock = telemetry.SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Loader{
		station: station,
		table:   table,
		sink:    sink,
		retry:   retry,
		clock:   clock,
		pace:    pace,
		logger:  logger,
	}, nil
}

// LoadHistorical inserts rows in one batch and one commit.
func (l *Loader) LoadHistorical(ctx context.Context, rows []telemetry.Row) (LoadResult, error) {
	if len(rows) == 0 {
		return LoadResult{}, nil
	}
	start := time.Now()
	err := l.retry.Start(ctx, Task{
		Name: l.station + ".bulk",
		Exec: func(ctx context.Context) error { return l.sink.InsertBatch(ctx, rows) },
		Cond: Retryable,
	})
	if err != nil {
		metrics.ObserveWrite(metrics.PathBulk, metrics.ResultError, time.Since(start))
		metrics.IncWriteError(l.station, metrics.PathBulk)
		failed := rows[0]
		var rowErr *telemetry.RowWriteError
		if errors.As(err, &rowErr) && rowErr.Index >= 0 && rowErr.Index < len(rows) {
			failed = rows[rowErr.Index]
		}
		return LoadResult{}, l.partial(failed, err)
	}
	metrics.ObserveWrite(metrics.PathBulk, metrics.ResultSuccess, time.Since(start))
	metrics.AddRowsWritten(l.station, metrics.PathBulk, len(rows))
	last := rows[len(rows)-1]
	l.logger.Printf("loader bulk: station=%s table=%s rows=%d last_id=%d", l.station, l.table, len(rows), last.ID)
	return LoadResult{Written: len(rows), Last: &last}, nil
}

// LoadLive inserts rows one commit at a time, sleeping the pace between rows.
// Rows committed before a failure stay committed.
func (l *Loader) LoadLive(ctx context.Context, rows []telemetry.Row) (LoadResult, error) {
	var result LoadResult
	for i := range rows {
		row := rows[i]
		if i > 0 && l.pace > 0 {
			if err := l.clock.Sleep(ctx, l.pace); err != nil {
				return result, err
			}
		}
		start := time.Now()
		err := l.retry.Start(ctx, Task{
			Name: l.station + ".paced",
			Exec: func(ctx context.Context) error { return l.sink.Insert(ctx, row) },
			Cond: Retryable,
		})
		if err != nil {
			metrics.ObserveWrite(metrics.PathPaced, metrics.ResultError, time.Since(start))
			metrics.IncWriteError(l.station, metrics.PathPaced)
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			return result, l.partial(row, err)
		}
		metrics.ObserveWrite(metrics.PathPaced, metrics.ResultSuccess, time.Since(start))
		metrics.AddRowsWritten(l.station, metrics.PathPaced, 1)
		result.Written++
		result.Last = &row
	}
	if result.Written > 0 {
		l.logger.Printf("loader paced: station=%s table=%s rows=%d last_id=%d", l.station, l.table, result.Written, result.Last.ID)
	}
	return result, nil
}

func (l *Loader) partial(row telemetry.Row, err error) error {
	attempts := 1
	var attemptsErr *AttemptsError
	if errors.As(err, &attemptsErr) {
		attempts = attemptsErr.Attempts
		err = attemptsErr.Err
	}
	l.logger.Printf("loader write failed: station=%s table=%s id=%d attempts=%d err=%v", l.station, l.table, row.ID, attempts, err)
	return &telemetry.PartialWriteError{Table: l.table, Row: row, Attempts: attempts, Err: err}
}
