package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	telemetry "foundry-telemetry/internal/telemetry/domain"
)

const energyTableDDL = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id BIGINT PRIMARY KEY,
	station TEXT NOT NULL,
	date DATE NOT NULL,
	time TIME NOT NULL,
	heat_no TEXT,
	power_factor NUMERIC(4,2) NOT NULL,
	power_kw NUMERIC(12,2) NOT NULL,
	reading_kvah NUMERIC(16,2) NOT NULL,
	consumption_kvah NUMERIC(12,2) NOT NULL,
	machine_status TEXT NOT NULL,
	notification TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_date_time_idx ON %[1]s (date, time);`

const productionTableDDL = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id BIGINT PRIMARY KEY,
	station TEXT NOT NULL,
	date DATE NOT NULL,
	time TIME NOT NULL,
	heat_no TEXT,
	furnace_temperature NUMERIC(8,2) NOT NULL,
	fe_pct NUMERIC(6,2) NOT NULL,
	c_pct NUMERIC(6,2) NOT NULL,
	cr_pct NUMERIC(6,2) NOT NULL,
	ni_pct NUMERIC(6,2) NOT NULL,
	cumulative_planned_kg NUMERIC(14,2) NOT NULL,
	cumulative_actual_kg NUMERIC(14,2) NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_date_time_idx ON %[1]s (date, time);`

const runsTableDDL = `
CREATE TABLE IF NOT EXISTS generator_runs (
	id UUID PRIMARY KEY,
	station TEXT NOT NULL,
	phase TEXT NOT NULL,
	status TEXT NOT NULL,
	rows_written INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS generator_runs_station_idx ON generator_runs (station, started_at DESC);`

// EnsureSchema creates the run ledger and one table per station if missing.
func EnsureSchema(ctx context.Context, db *sql.DB, stations []telemetry.StationConfig) error {
	if db == nil {
		return errors.New("schema: nil db")
	}
	if _, err := db.ExecContext(ctx, runsTableDDL); err != nil {
		return fmt.Errorf("schema generator_runs: %w", err)
	}
	for _, st := range stations {
		if err := st.Validate(); err != nil {
			return err
		}
		ddl := energyTableDDL
		if st.IsProduction() {
			ddl = productionTableDDL
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf(ddl, st.Table)); err != nil {
			return fmt.Errorf("schema %s: %w", st.Table, err)
		}
	}
	return nil
}
