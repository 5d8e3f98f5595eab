// Command ingest polls eismoinfo.lt road weather stations on a schedule and
// stores normalized reports, station changes and per-station poll outcomes.
//
// Usage:
//
//	ingest                 # run the scheduler and the HTTP endpoints
//	ingest -once last_day  # run one job and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/couchcryptid/road-weather-etl/internal/adapter/eismo"
	"github.com/couchcryptid/road-weather-etl/internal/adapter/elevation"
	"github.com/couchcryptid/road-weather-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/road-weather-etl/internal/adapter/httpclient"
	kafkaadapter "github.com/couchcryptid/road-weather-etl/internal/adapter/kafka"
	"github.com/couchcryptid/road-weather-etl/internal/adapter/memory"
	"github.com/couchcryptid/road-weather-etl/internal/adapter/postgres"
	"github.com/couchcryptid/road-weather-etl/internal/category"
	"github.com/couchcryptid/road-weather-etl/internal/config"
	"github.com/couchcryptid/road-weather-etl/internal/domain"
	"github.com/couchcryptid/road-weather-etl/internal/observability"
	"github.com/couchcryptid/road-weather-etl/internal/pipeline"
	"github.com/couchcryptid/road-weather-etl/internal/scheduler"
	"github.com/couchcryptid/road-weather-etl/internal/stations"
	"github.com/joho/godotenv"
)

// store is everything the service persists through.
type store interface {
	pipeline.Store
	stations.Store
	Close()
}

func main() {
	once := flag.String("once", "", "run a single job (current_weather, last_hour, last_day, stations, elevations) and exit")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load env file", "path", *envFile, "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once, logger, metrics); err != nil {
		logger.Error("ingest failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, once string, logger *slog.Logger, metrics *observability.Metrics) error {
	db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	codes, err := category.LoadSeed(cfg.CategorySeedFile)
	if err != nil {
		return err
	}
	seeded, err := category.Seed(ctx, db, codes)
	if err != nil {
		return err
	}
	logger.Info("category codes seeded", "created", seeded, "submitted", len(codes))

	httpClient := httpclient.New(cfg.HTTPTimeout, logger, metrics)
	source := eismo.NewClient(httpClient, cfg.SourceBaseURL,
		httpclient.Policy{MaxRetries: cfg.SourceMaxRetries, BackoffFactor: cfg.BackoffFactor, Logging: true},
		httpclient.Policy{MaxRetries: cfg.RetrospectiveMaxRetries, BackoffFactor: cfg.BackoffFactor, Logging: true},
		logger)
	heights := elevation.NewClient(httpClient, cfg.ElevationURL, cfg.ElevationCacheSize, logger, metrics)
	registry := stations.NewReconciler(db, source, heights, logger, metrics)

	var sink pipeline.OutcomeSink
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewOutcomeWriter(cfg.KafkaBrokers, cfg.KafkaOutcomeTopic, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		sink = writer
		logger.Info("outcome publishing enabled", "topic", cfg.KafkaOutcomeTopic)
	}

	orch := pipeline.New(source, registry, db, sink, pipeline.Config{
		Location:        cfg.Location,
		LastHourReports: cfg.LastHourReports,
		LastDayReports:  cfg.LastDayReports,
		Category:        category.Options{AutoCodeNumericWind: cfg.CategoryAutoCodeWind},
	}, logger, metrics)

	sched := scheduler.New(logger)
	for _, job := range jobs(cfg, orch) {
		if err := sched.Register(job); err != nil {
			return err
		}
	}

	if once != "" {
		return sched.Run(ctx, once)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, orch, sched, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	sched.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sched.Stop()

	logger.Info("shutdown complete")
	return nil
}

func jobs(cfg *config.Config, orch *pipeline.Orchestrator) []scheduler.Job {
	return []scheduler.Job{
		{Name: string(domain.TriggerCurrent), Cron: cfg.ScheduleCurrent, Run: orch.RunCurrent},
		{Name: string(domain.TriggerLastHour), Cron: cfg.ScheduleLastHour, Run: func(ctx context.Context) error {
			return orch.RunRetrospective(ctx, domain.PeriodLastHour)
		}},
		{Name: string(domain.TriggerLastDay), Cron: cfg.ScheduleLastDay, Run: func(ctx context.Context) error {
			return orch.RunRetrospective(ctx, domain.PeriodLastDay)
		}},
		{Name: string(domain.TriggerStations), Cron: cfg.ScheduleStations, Run: orch.RefreshStations},
		{Name: string(domain.TriggerElevations), Cron: cfg.ScheduleElevations, Run: orch.RefreshElevations},
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return memory.New(), nil
	case config.StorePostgres:
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(cfg.DatabaseURL, logger); err != nil {
				return nil, err
			}
		}
		db, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
