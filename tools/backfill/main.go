package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"foundry-telemetry/internal/telemetry/application"
	telemetry "foundry-telemetry/internal/telemetry/domain"
	"foundry-telemetry/internal/telemetry/infrastructure/memory"
	telemetrypostgres "foundry-telemetry/internal/telemetry/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type config struct {
	dsn        string
	configPath string
	stations   string
	cutover    string
	parallel   int
	dryRun     bool
}

func main() {
	cfg := parseConfig()
	if cfg.configPath != "" {
		_ = os.Setenv("SIMULATOR_CONFIG", cfg.configPath)
	}
	if !cfg.dryRun && cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.parallel <= 0 {
		log.Fatal("parallel must be > 0")
	}

	simCfg, err := application.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	loc, err := simCfg.Location()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	window, err := simCfg.Window()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cutover, err := parseCutover(cfg.cutover, loc)
	if err != nil {
		log.Fatalf("invalid cutover: %v", err)
	}
	stations, err := selectStations(simCfg, cfg.stations)
	if err != nil {
		log.Fatalf("select stations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		runs  telemetry.RunRecorder
		sinks = make(map[string]telemetry.RowSink, len(stations))
		store *memory.Store
	)
	if cfg.dryRun {
		store = memory.NewStore()
		runs = store
		for _, st := range stations {
			sinks[st.Name] = store.Table(st.Table)
		}
	} else {
		db, err := sql.Open("pgx", cfg.dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
		if err := telemetrypostgres.EnsureSchema(ctx, db, stations); err != nil {
			log.Fatalf("ensure schema: %v", err)
		}
		runs = telemetrypostgres.NewRunRepository(db)
		for _, st := range stations {
			sinks[st.Name] = telemetrypostgres.NewRowRepository(db, st, telemetrypostgres.WithLocation(loc))
		}
	}

	logger := log.Default()
	log.Printf("backfill starting: stations=%d cutover=%s dry_run=%v", len(stations), cutover.Format(time.RFC3339), cfg.dryRun)

	var group errgroup.Group
	group.SetLimit(cfg.parallel)
	for _, st := range stations {
		unit, err := application.NewStationUnit(st, sinks[st.Name], application.UnitOptions{
			Window: window,
			Live:   simCfg.Live,
			Retry:  simCfg.Retry,
			Seed:   simCfg.Seed,
			Runs:   runs,
			Logger: logger,
		})
		if err != nil {
			log.Fatalf("station %s: %v", st.Name, err)
		}
		group.Go(func() error {
			pending, err := unit.Backfill(ctx, cutover)
			if err != nil {
				log.Printf("backfill %s failed: %v", unit.Name(), err)
				return err
			}
			log.Printf("backfill %s done: table=%s pending_live_rows=%d", unit.Name(), unit.Table(), len(pending))
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		log.Fatalf("backfill incomplete: %v", err)
	}

	if store != nil {
		for _, st := range stations {
			log.Printf("dry run %s: rows=%d", st.Name, len(store.Table(st.Table).Rows()))
		}
	}
	log.Printf("backfill completed")
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.StringVar(&cfg.configPath, "config", envOrDefault("SIMULATOR_CONFIG", ""), "station config YAML")
	flag.StringVar(&cfg.stations, "stations", envOrDefault("STATIONS", ""), "comma separated station names (default all)")
	flag.StringVar(&cfg.cutover, "cutover", envOrDefault("CUTOVER", ""), "backfill up to this instant (YYYY-MM-DD or RFC3339, default now)")
	flag.IntVar(&cfg.parallel, "parallel", envOrInt("PARALLEL", 4), "stations loaded concurrently")
	flag.BoolVar(&cfg.dryRun, "dry-run", envOrBool("DRY_RUN", false), "generate into memory without touching Postgres")
	flag.Parse()
	return cfg
}

func parseCutover(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now().In(loc), nil
	}
	if strings.Contains(value, "T") {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.In(loc), nil
	}
	return time.ParseInLocation("2006-01-02", value, loc)
}

func selectStations(cfg application.Config, names string) ([]telemetry.StationConfig, error) {
	if strings.TrimSpace(names) == "" {
		return cfg.Stations, nil
	}
	var out []telemetry.StationConfig
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		st, ok := cfg.StationByName(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown station %s", telemetry.ErrConfig, name)
		}
		out = append(out, st)
	}
	return out, nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
