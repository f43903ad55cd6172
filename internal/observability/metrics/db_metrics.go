package metrics

import (
	"database/sql"
	"log"
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

func registerDBMetrics(db *sql.DB, logger *log.Logger, tables []string) {
	for _, table := range tables {
		if !tableNamePattern.MatchString(table) {
			if logger != nil {
				logger.Printf("metrics skip table %q: invalid name", table)
			}
			continue
		}
		query := "SELECT COUNT(*) FROM " + table
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        metricPrefix + "table_rows",
				Help:        "Persisted rows per station table",
				ConstLabels: prometheus.Labels{"table": table},
			},
			func() float64 {
				return queryCount(db, logger, query)
			},
		))
	}

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "generator_runs_failed",
			Help: "Failed generator runs in the run ledger",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM generator_runs WHERE status = 'failed'")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
