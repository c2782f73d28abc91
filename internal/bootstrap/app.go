package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/cassiomorais/paybridge/internal/config"
	"github.com/cassiomorais/paybridge/internal/gateway"
	"github.com/cassiomorais/paybridge/internal/observability"
	"github.com/cassiomorais/paybridge/internal/repository/sqlstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	DB       *sql.DB
	UoW      sqlstore.UnitOfWork
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Gateway  *gateway.Guarded

	shutdownTracer func(context.Context) error
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Str("version", cfg.App.Version).Msg("Starting")

	shutdownTracer, err := observability.InitTracer(cfg.Observability.EnableTracing,
		cfg.Observability.JaegerEndpoint, serviceName, cfg.App.Version)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		shutdownTracer = func(context.Context) error { return nil }
	} else if cfg.Observability.EnableTracing {
		logger.Info().Msg("Tracing enabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(metricsNamespace, registry)
	logger.Info().Msg("Metrics initialized")

	db, uow, err := sqlstore.Open(ctx, &cfg.Database, logger)
	if err != nil {
		_ = shutdownTracer(context.Background())
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Str("driver", cfg.Database.Driver).Str("host", cfg.Database.Host).Msg("Connected to database")

	gw, err := gateway.NewFromConfig(&cfg.Gateway, metrics)
	if err != nil {
		db.Close()
		_ = shutdownTracer(context.Background())
		return nil, fmt.Errorf("create gateway client: %w", err)
	}
	logger.Info().Str("provider", gw.Name()).Msg("Payment gateway configured")

	return &App{
		Config:         cfg,
		Logger:         logger,
		DB:             db,
		UoW:            uow,
		Metrics:        metrics,
		Registry:       registry,
		Gateway:        gw,
		shutdownTracer: shutdownTracer,
	}, nil
}

// Close releases the pool and flushes pending spans.
func (a *App) Close(ctx context.Context) {
	if err := a.shutdownTracer(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("Tracer shutdown failed")
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Database close failed")
	}
}
