// Package main provides the entrypoint for the windgrid API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/windgrid/windgrid/internal/api"
	"github.com/windgrid/windgrid/internal/api/middleware"
	"github.com/windgrid/windgrid/internal/auth"
	"github.com/windgrid/windgrid/internal/balloon"
	"github.com/windgrid/windgrid/internal/config"
	"github.com/windgrid/windgrid/internal/database"
	"github.com/windgrid/windgrid/internal/gate"
	"github.com/windgrid/windgrid/internal/provider/resilience"
	"github.com/windgrid/windgrid/internal/telemetry"
	"github.com/windgrid/windgrid/internal/wind"
	"github.com/windgrid/windgrid/internal/wind/openmeteo"
	"github.com/windgrid/windgrid/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "windgrid-api"

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, p := range verr.Problems {
				log.Error().Str("problem", p).Msg("invalid configuration")
			}
		} else {
			log.Error().Err(err).Msg("failed to load configuration")
		}
		return err
	}
	log = log.Level(cfg.Level())

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.Env).
		Msg("starting windgrid API")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Logger:         log.With().Str("component", "telemetry").Logger(),
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize telemetry")
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize http metrics")
		return err
	}

	registry := resilience.NewRegistry()

	repo, closeRepo, err := openRepository(ctx, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to open wind repository")
		return err
	}
	defer closeRepo()

	scheduler, err := newScheduler(ctx, cfg, registry, repo, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to create scheduler")
		return err
	}

	balloonHTTP := resilience.DefaultClientConfig(balloon.ProviderName)
	balloonHTTP.Timeout = cfg.RequestTimeout
	balloonHTTP.MaxRetries = 2
	balloonHTTP.Registry = registry
	balloons := balloon.NewService(balloon.ServiceConfig{
		Fetcher: balloon.NewClient(balloon.ClientConfig{
			BaseURL:    cfg.BalloonBaseURL,
			Hours:      cfg.BalloonHours,
			HTTPClient: resilience.NewClient(balloonHTTP),
			Registry:   registry,
			Logger:     log.With().Str("component", "balloon").Logger(),
		}),
		Logger: log.With().Str("component", "balloon").Logger(),
	})

	var tokens *auth.TokenService
	if cfg.JWTSecret != "" {
		tokens, err = auth.NewTokenService(auth.TokenConfig{SigningKey: cfg.JWTSecret})
		if err != nil {
			log.Error().Err(err).Msg("failed to create token service")
			return err
		}
	} else {
		log.Warn().Msg("JWT_SIGNING_KEY not set - admin endpoints disabled")
	}

	streamDone := make(chan struct{})
	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        httpMetrics,
		Registry:       registry,
		Scheduler:      scheduler,
		Balloons:       balloons,
		Tokens:         tokens,
		AllowedOrigins: cfg.AllowedOrigins,
		StreamDone:     streamDone,
		RequireTLS:     cfg.RequireTLS,
		RateLimit: middleware.RateLimitConfig{
			RequestLimit: cfg.RateLimit,
			WindowLength: cfg.RateWindow,
		},
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// Shutdown does not wait for hijacked connections.
	server.RegisterOnShutdown(func() { close(streamDone) })

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error().Err(err).Msg("server error")
		stop()
		<-schedulerDone
		return err
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return err
	}
	<-schedulerDone

	log.Info().Msg("server stopped")
	return nil
}

// openRepository uses PostgreSQL when the environment names a database and memory otherwise.
func openRepository(ctx context.Context, log zerolog.Logger) (wind.Repository, func(), error) {
	if !database.Configured() {
		log.Info().Msg("no database configured - keeping wind summaries in memory")
		return wind.NewInMemoryRepository(), func() {}, nil
	}

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig, log)
	if err != nil {
		return nil, nil, err
	}
	repo := wind.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	log.Info().Str("database", dbConfig.Database).Msg("database connected")
	return repo, pool.Close, nil
}

func newScheduler(ctx context.Context, cfg config.Config, registry *resilience.Registry, repo wind.Repository, log zerolog.Logger) (*worker.Scheduler, error) {
	gateMetrics, err := gate.NewMetrics()
	if err != nil {
		return nil, err
	}
	g, err := gate.New(gate.Config{Limit: cfg.Concurrency, Metrics: gateMetrics})
	if err != nil {
		return nil, err
	}

	schedulerMetrics, err := worker.NewMetrics()
	if err != nil {
		return nil, err
	}

	httpCfg := resilience.DefaultClientConfig(openmeteo.ProviderName)
	httpCfg.Timeout = cfg.RequestTimeout
	httpCfg.Registry = registry
	sampler := openmeteo.NewClient(openmeteo.ClientConfig{
		BaseURL:    cfg.OpenMeteoBaseURL,
		HTTPClient: resilience.NewClient(httpCfg),
		Registry:   registry,
		Logger:     log.With().Str("component", "open-meteo").Logger(),
	})

	startCycle, err := repo.LatestCycle(ctx)
	switch {
	case errors.Is(err, wind.ErrCycleNotFound):
		startCycle = 0
	case err != nil:
		return nil, err
	}

	return worker.NewScheduler(worker.SchedulerConfig{
		Config:     cfg.Scheduler,
		Sampler:    sampler,
		Gate:       g,
		Repository: repo,
		Metrics:    schedulerMetrics,
		StartCycle: startCycle + 1,
		Logger:     log.With().Str("component", "scheduler").Logger(),
	})
}
