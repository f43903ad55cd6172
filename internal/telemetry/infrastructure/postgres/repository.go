package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	telemetry "foundry-telemetry/internal/telemetry/domain"
)

const (
	dateLayout      = "2006-01-02"
	clockLayout     = "15:04:05"
	timestampLayout = dateLayout + " " + clockLayout
)

var energyColumns = []string{
	"id", "station", "date", "time", "heat_no",
	"power_factor", "power_kw", "reading_kvah", "consumption_kvah", "machine_status", "notification",
}

var productionColumns = []string{
	"id", "station", "date", "time", "heat_no",
	"furnace_temperature", "fe_pct", "c_pct", "cr_pct", "ni_pct", "cumulative_planned_kg", "cumulative_actual_kg",
}

// RowRepository is a Postgres sink for one station table.
type RowRepository struct {
	db         *sql.DB
	table      string
	production bool
	loc        *time.Location
}

// NewRowRepository constructs a repository for the station's table.
func NewRowRepository(db *sql.DB, station telemetry.StationConfig, opts ...RepositoryOption) *RowRepository {
	repo := &RowRepository{
		db:         db,
		table:      station.Table,
		production: station.IsProduction(),
		loc:        time.Local,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*RowRepository)

// WithTable overrides the station table name.
func WithTable(table string) RepositoryOption {
	return func(repo *RowRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// WithLocation sets the zone the date and time columns are written in.
func WithLocation(loc *time.Location) RepositoryOption {
	return func(repo *RowRepository) {
		if loc != nil {
			repo.loc = loc
		}
	}
}

// Table returns the table name.
func (r *RowRepository) Table() string { return r.table }

// MaxID returns the highest id, 0 for an empty table.
func (r *RowRepository) MaxID(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("row repo: nil db")
	}
	var maxID int64
	query := fmt.Sprintf(`SELECT COALESCE(MAX(id), 0) FROM %s`, r.table)
	if err := r.db.QueryRowContext(ctx, query).Scan(&maxID); err != nil {
		return 0, classify(err)
	}
	return maxID, nil
}

// LastRow returns the row with the highest id.
func (r *RowRepository) LastRow(ctx context.Context) (*telemetry.Row, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("row repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY id DESC LIMIT 1`, r.selectList(), r.table)
	row, err := r.scan(r.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, telemetry.ErrRowNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return row, nil
}

// InsertBatch writes rows in one transaction. A failing row rolls back the batch and is
// reported as *telemetry.RowWriteError.
func (r *RowRepository) InsertBatch(ctx context.Context, rows []telemetry.Row) error {
	if r == nil || r.db == nil {
		return errors.New("row repo: nil db")
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}

	stmt, err := tx.PrepareContext(ctx, r.insertQuery())
	if err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	defer stmt.Close()

	for i, row := range rows {
		args, err := r.args(row)
		if err != nil {
			_ = tx.Rollback()
			return &telemetry.RowWriteError{Index: i, Err: err}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return &telemetry.RowWriteError{Index: i, Err: classify(err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// Insert writes and commits one row.
func (r *RowRepository) Insert(ctx context.Context, row telemetry.Row) error {
	if r == nil || r.db == nil {
		return errors.New("row repo: nil db")
	}
	args, err := r.args(row)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, r.insertQuery(), args...); err != nil {
		return classify(err)
	}
	return nil
}

// ListRows returns rows with from <= ts < to ordered by id. Zero bounds are open.
func (r *RowRepository) ListRows(ctx context.Context, from, to time.Time) ([]telemetry.Row, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("row repo: nil db")
	}
	var where []string
	var args []any
	if !from.IsZero() {
		args = append(args, from.In(r.loc).Format(timestampLayout))
		where = append(where, fmt.Sprintf("(date + time) >= $%d::text::timestamp", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to.In(r.loc).Format(timestampLayout))
		where = append(where, fmt.Sprintf("(date + time) < $%d::text::timestamp", len(args)))
	}
	query := fmt.Sprintf(`SELECT %s FROM %s`, r.selectList(), r.table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	result := make([]telemetry.Row, 0)
	for rows.Next() {
		row, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return result, nil
}

// Count returns the number of persisted rows.
func (r *RowRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, classify(err)
	}
	return count, nil
}

func (r *RowRepository) columns() []string {
	if r.production {
		return productionColumns
	}
	return energyColumns
}

func (r *RowRepository) insertQuery() string {
	cols := r.columns()
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		switch col {
		case "date":
			placeholders[i] = fmt.Sprintf("$%d::text::date", i+1)
		case "time":
			placeholders[i] = fmt.Sprintf("$%d::text::time", i+1)
		default:
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
	}
	return fmt.Sprintf(`
INSERT INTO %s (
	%s
) VALUES (
	%s
)`, r.table, strings.Join(cols, ",\n\t"), strings.Join(placeholders, ", "))
}

func (r *RowRepository) selectList() string {
	cols := make([]string, 0, len(r.columns()))
	for _, col := range r.columns() {
		switch col {
		case "date", "time", "heat_no":
			cols = append(cols, fmt.Sprintf("COALESCE(%s::text, '')", col))
		default:
			cols = append(cols, col)
		}
	}
	return strings.Join(cols, ", ")
}

func (r *RowRepository) args(row telemetry.Row) ([]any, error) {
	if err := row.Validate(); err != nil {
		return nil, err
	}
	if r.production != (row.Production != nil) {
		return nil, fmt.Errorf("%w: variant does not match table %s", telemetry.ErrInvalidRow, r.table)
	}
	ts := row.TS.In(r.loc)
	heatNo := sql.NullString{String: row.HeatNo, Valid: row.HeatNo != ""}
	args := []any{row.ID, row.Station, ts.Format(dateLayout), ts.Format(clockLayout), heatNo}
	if r.production {
		p := row.Production
		return append(args,
			p.FurnaceTemperature, p.FePct, p.CPct, p.CrPct, p.NiPct,
			p.CumulativePlannedKg, p.CumulativeActualKg,
		), nil
	}
	e := row.Energy
	return append(args,
		e.PowerFactor, e.PowerKW, e.ReadingKVAh, e.ConsumptionKVAh, string(e.Status), string(e.Notification),
	), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *RowRepository) scan(s scanner) (*telemetry.Row, error) {
	var row telemetry.Row
	var date, clock, status, notification string
	dest := []any{&row.ID, &row.Station, &date, &clock, &row.HeatNo}
	if r.production {
		p := &telemetry.ProductionReading{}
		row.Production = p
		dest = append(dest, &p.FurnaceTemperature, &p.FePct, &p.CPct, &p.CrPct, &p.NiPct, &p.CumulativePlannedKg, &p.CumulativeActualKg)
	} else {
		e := &telemetry.EnergyReading{}
		row.Energy = e
		dest = append(dest, &e.PowerFactor, &e.PowerKW, &e.ReadingKVAh, &e.ConsumptionKVAh, &status, &notification)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	if row.Energy != nil {
		row.Energy.Status = telemetry.MachineStatus(status)
		row.Energy.Notification = telemetry.PFNotification(notification)
	}
	ts, err := time.ParseInLocation(timestampLayout, date+" "+clock, r.loc)
	if err != nil {
		return nil, fmt.Errorf("row repo: parse %s %s: %w", date, clock, err)
	}
	row.TS = ts
	return &row, nil
}

// classify maps driver errors onto the sink sentinels. Data and integrity violations are
// permanent; everything else is treated as the sink being unavailable.
func classify(err error) error {
	if err == nil || errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23") {
			return fmt.Errorf("%w: %v", telemetry.ErrInvalidRow, err)
		}
		return err
	}
	return fmt.Errorf("%w: %v", telemetry.ErrSinkUnavailable, err)
}
