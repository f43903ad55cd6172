package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	apihttp "foundry-telemetry/internal/api/http"
	"foundry-telemetry/internal/api/ws"
	"foundry-telemetry/internal/feed"
	"foundry-telemetry/internal/observability/metrics"
	"foundry-telemetry/internal/telemetry/application"
	telemetry "foundry-telemetry/internal/telemetry/domain"
	"foundry-telemetry/internal/telemetry/infrastructure/memory"
	telemetrypostgres "foundry-telemetry/internal/telemetry/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	sinkPostgres = "postgres"
	sinkMemory   = "memory"
)

type stationStore interface {
	telemetry.RowSink
	telemetry.RowReader
}

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	simCfg, err := application.LoadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	loc, err := simCfg.Location()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	window, err := simCfg.Window()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tables := make([]string, 0, len(simCfg.Stations))
	for _, st := range simCfg.Stations {
		tables = append(tables, st.Table)
	}

	var (
		db     *sql.DB
		runs   telemetry.RunRecorder
		stores = make(map[string]stationStore, len(simCfg.Stations))
	)
	switch cfg.Sink {
	case sinkPostgres:
		db, err = openDB(ctx, cfg)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := telemetrypostgres.EnsureSchema(ctx, db, simCfg.Stations); err != nil {
			logger.Fatalf("db schema error: %v", err)
		}
		runs = telemetrypostgres.NewRunRepository(db)
		for _, st := range simCfg.Stations {
			stores[st.Name] = telemetrypostgres.NewRowRepository(db, st, telemetrypostgres.WithLocation(loc))
		}
	case sinkMemory:
		store := memory.NewStore()
		runs = store
		for _, st := range simCfg.Stations {
			stores[st.Name] = store.Table(st.Table)
		}
	default:
		logger.Fatalf("config error: unknown SINK %q", cfg.Sink)
	}

	metrics.Init(db, logger, tables)

	clock := telemetry.SystemClock{}
	units := make([]application.Unit, 0, len(simCfg.Stations))
	sources := make([]feed.Source, 0, len(simCfg.Stations))
	for _, st := range simCfg.Stations {
		unit, err := application.NewStationUnit(st, stores[st.Name], application.UnitOptions{
			Window:   window,
			Live:     simCfg.Live,
			Realtime: simCfg.Realtime,
			Retry:    simCfg.Retry,
			Seed:     simCfg.Seed,
			Clock:    clock,
			Runs:     runs,
			Logger:   logger,
		})
		if err != nil {
			logger.Fatalf("station %s error: %v", st.Name, err)
		}
		units = append(units, unit)
		sources = append(sources, feed.Source{
			Name:       st.Name,
			Label:      st.Label,
			Production: st.IsProduction(),
			Reader:     stores[st.Name],
		})
	}

	orchestrator, err := application.NewOrchestrator(units, clock, logger)
	if err != nil {
		logger.Fatalf("orchestrator error: %v", err)
	}
	feedService, err := feed.NewService(sources, clock, loc)
	if err != nil {
		logger.Fatalf("feed error: %v", err)
	}

	hub := ws.NewHub(logger)
	wsHandler := ws.NewHandler(hub, feedService, simCfg.Feed.PushInterval, logger)
	go wsHandler.Run(ctx)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apihttp.NewRouter(feedService, runs, wsHandler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Printf("http listening: addr=%s sink=%s stations=%d", cfg.HTTPAddr, cfg.Sink, len(units))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("http server error: %v", err)
			stop()
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := orchestrator.Run(ctx); err != nil {
			logger.Printf("orchestrator finished with errors: %v", err)
			return
		}
		logger.Printf("orchestrator finished")
	}()

	<-ctx.Done()
	logger.Printf("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http shutdown error: %v", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Printf("orchestrator did not stop within %s", cfg.ShutdownTimeout)
	}
}

type config struct {
	DatabaseURL     string
	HTTPAddr        string
	Sink            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ShutdownTimeout time.Duration
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:     getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		Sink:            getenvDefault("SINK", sinkPostgres),
		MaxOpenConns:    getenvIntDefault("DB_MAX_OPEN_CONNS", 16),
		MaxIdleConns:    getenvIntDefault("DB_MAX_IDLE_CONNS", 8),
		ConnMaxLifetime: getenvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		ShutdownTimeout: getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if cfg.Sink == sinkPostgres && cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	return cfg
}

func openDB(ctx context.Context, cfg config) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
