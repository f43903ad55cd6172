package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	telemetry "foundry-telemetry/internal/telemetry/domain"
)

// Op records one committed write for ordering assertions.
type Op struct {
	Seq   int
	Table string
	Kind  string
	Rows  int
}

const (
	OpBatch  = "batch"
	OpInsert = "insert"
)

// Store is an in-memory sink holding one table per station plus the run ledger.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*Table
	runs   []telemetry.Run
	ops    []Op
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{tables: make(map[string]*Table)}
}

// Table returns the named table, creating it on first use.
func (s *Store) Table(name string) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		t = &Table{store: s, name: name}
		s.tables[name] = t
	}
	return t
}

// Ops returns a copy of the committed write log.
func (s *Store) Ops() []Op {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Op(nil), s.ops...)
}

func (s *Store) record(table, kind string, rows int) {
	s.ops = append(s.ops, Op{Seq: len(s.ops) + 1, Table: table, Kind: kind, Rows: rows})
}

// StartRun stores a new ledger entry.
func (s *Store) StartRun(ctx context.Context, run telemetry.Run) error {
	_ = ctx
	s.mu.Lock()
	s.runs = append(s.runs, run)
	s.mu.Unlock()
	return nil
}

// FinishRun overwrites the ledger entry with the same id.
func (s *Store) FinishRun(ctx context.Context, run telemetry.Run) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = run
			return nil
		}
	}
	return fmt.Errorf("memory: run %s not started", run.ID)
}

// ListRuns returns the newest runs first, optionally filtered by station.
func (s *Store) ListRuns(ctx context.Context, station string, limit int) ([]telemetry.Run, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []telemetry.Run
	for i := len(s.runs) - 1; i >= 0; i-- {
		if station != "" && s.runs[i].Station != station {
			continue
		}
		out = append(out, s.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Table is one station table. It implements telemetry.RowSink and telemetry.RowReader.
type Table struct {
	store *Store
	name  string
	rows  []telemetry.Row
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// MaxID returns the highest id, 0 for an empty table.
func (t *Table) MaxID(ctx context.Context) (int64, error) {
	_ = ctx
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if len(t.rows) == 0 {
		return 0, nil
	}
	return t.rows[len(t.rows)-1].ID, nil
}

// LastRow returns the row with the highest id.
func (t *Table) LastRow(ctx context.Context) (*telemetry.Row, error) {
	_ = ctx
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if len(t.rows) == 0 {
		return nil, telemetry.ErrRowNotFound
	}
	row := t.rows[len(t.rows)-1]
	return &row, nil
}

// InsertBatch appends every row or none.
func (t *Table) InsertBatch(ctx context.Context, rows []telemetry.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	prev := t.maxIDLocked()
	for i, row := range rows {
		if err := row.Validate(); err != nil {
			return &telemetry.RowWriteError{Index: i, Err: err}
		}
		if row.ID <= prev {
			return &telemetry.RowWriteError{Index: i, Err: fmt.Errorf("%w: duplicate id %d", telemetry.ErrInvalidRow, row.ID)}
		}
		prev = row.ID
	}
	t.rows = append(t.rows, rows...)
	t.store.record(t.name, OpBatch, len(rows))
	return nil
}

// Insert appends one row.
func (t *Table) Insert(ctx context.Context, row telemetry.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := row.Validate(); err != nil {
		return err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if row.ID <= t.maxIDLocked() {
		return fmt.Errorf("%w: duplicate id %d", telemetry.ErrInvalidRow, row.ID)
	}
	t.rows = append(t.rows, row)
	t.store.record(t.name, OpInsert, 1)
	return nil
}

// ListRows returns rows with from <= ts < to ordered by id. Zero bounds are open.
func (t *Table) ListRows(ctx context.Context, from, to time.Time) ([]telemetry.Row, error) {
	_ = ctx
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	out := make([]telemetry.Row, 0)
	for _, row := range t.rows {
		if !from.IsZero() && row.TS.Before(from) {
			continue
		}
		if !to.IsZero() && !row.TS.Before(to) {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Rows returns a copy of every row.
func (t *Table) Rows() []telemetry.Row {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return append([]telemetry.Row(nil), t.rows...)
}

func (t *Table) maxIDLocked() int64 {
	if len(t.rows) == 0 {
		return 0
	}
	return t.rows[len(t.rows)-1].ID
}
