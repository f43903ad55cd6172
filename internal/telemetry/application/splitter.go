package application

import (
	"sort"
	"time"

	telemetry "foundry-telemetry/internal/telemetry/domain"
)

// SplitResult partitions a series around the cutover date.
type SplitResult struct {
	Historical []telemetry.Row
	Live       []telemetry.Row
	Dropped    []telemetry.Row
}

// Split sends rows dated before the cutover day to the bulk path and rows on it to the
// paced path. Rows after the cutover day are dropped. Each segment is ordered by (id, ts).
func Split(rows []telemetry.Row, cutover time.Time) SplitResult {
	var out SplitResult
	y, m, d := cutover.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, cutover.Location())
	next := day.AddDate(0, 0, 1)
	for _, row := range rows {
		ts := row.TS.In(cutover.Location())
		switch {
		case ts.Before(day):
			out.Historical = append(out.Historical, row)
		case ts.Before(next):
			out.Live = append(out.Live, row)
		default:
			out.Dropped = append(out.Dropped, row)
		}
	}
	sortRows(out.Historical)
	sortRows(out.Live)
	return out
}

func sortRows(rows []telemetry.Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ID != rows[j].ID {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].TS.Before(rows[j].TS)
	})
}
