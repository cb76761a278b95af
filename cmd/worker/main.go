// Package main provides the entrypoint for the windgrid acquisition worker. The worker runs
// the scheduler against PostgreSQL, accepts control messages from Pub/Sub and exposes the
// ops endpoints for the platform's health checks.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/windgrid/windgrid/internal/api/handler"
	"github.com/windgrid/windgrid/internal/api/middleware"
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

const serviceName = "windgrid-worker"

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
		Msg("starting windgrid worker")

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

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()

	repo := wind.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Error().Err(err).Msg("failed to ensure wind schema")
		return err
	}
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	startCycle, err := repo.LatestCycle(ctx)
	switch {
	case errors.Is(err, wind.ErrCycleNotFound):
		startCycle = 0
	case err != nil:
		log.Error().Err(err).Msg("failed to read latest cycle")
		return err
	}

	registry := resilience.NewRegistry()
	scheduler, err := newScheduler(cfg, registry, repo, startCycle+1, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to create scheduler")
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           opsRouter(scheduler, registry, log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := scheduler.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.PubSub.ProjectID != "" {
		ps, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Controller:       worker.NewController(scheduler, log.With().Str("component", "control").Logger()),
			Logger:           log.With().Str("component", "pubsub").Logger(),
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create pubsub handler")
			return err
		}
		defer func() {
			if err := ps.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close pubsub client")
			}
		}()
		g.Go(func() error { return ps.Start(gctx) })
	} else {
		log.Info().Msg("PUBSUB_PROJECT_ID not set - remote control disabled")
	}

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down worker")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker stopped with error")
		return err
	}

	log.Info().Msg("worker stopped")
	return nil
}

func newScheduler(cfg config.Config, registry *resilience.Registry, repo wind.Repository, startCycle int64, log zerolog.Logger) (*worker.Scheduler, error) {
	gateMetrics, err := gate.NewMetrics()
	if err != nil {
		return nil, err
	}
	g, err := gate.New(gate.Config{Limit: cfg.Concurrency, Metrics: gateMetrics})
	if err != nil {
		return nil, err
	}

	metrics, err := worker.NewMetrics()
	if err != nil {
		return nil, err
	}

	httpCfg := resilience.DefaultClientConfig(openmeteo.ProviderName)
	httpCfg.Timeout = cfg.RequestTimeout
	httpCfg.Registry = registry

	return worker.NewScheduler(worker.SchedulerConfig{
		Config: cfg.Scheduler,
		Sampler: openmeteo.NewClient(openmeteo.ClientConfig{
			BaseURL:    cfg.OpenMeteoBaseURL,
			HTTPClient: resilience.NewClient(httpCfg),
			Registry:   registry,
			Logger:     log.With().Str("component", "open-meteo").Logger(),
		}),
		Gate:       g,
		Repository: repo,
		Metrics:    metrics,
		StartCycle: startCycle,
		Logger:     log.With().Str("component", "scheduler").Logger(),
	})
}

func opsRouter(scheduler *worker.Scheduler, registry *resilience.Registry, log zerolog.Logger) http.Handler {
	ops := handler.NewOpsHandler(handler.OpsConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Registry:  registry,
		Scheduler: scheduler,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.ContentTypeJSON)

	r.Get("/health", ops.HealthCheck)
	r.Route("/v1/ops", func(r chi.Router) {
		r.Get("/health", ops.HealthCheck)
		r.Get("/ready", ops.ReadinessCheck)
		r.Get("/status", ops.SystemStatus)
	})
	return r
}
