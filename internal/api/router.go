// Package api provides the HTTP API for windgrid.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/windgrid/windgrid/internal/api/handler"
	"github.com/windgrid/windgrid/internal/api/middleware"
	"github.com/windgrid/windgrid/internal/auth"
	"github.com/windgrid/windgrid/internal/provider/resilience"
)

// DefaultServiceName is the span service name used when RouterConfig.ServiceName is empty.
const DefaultServiceName = "windgrid-api"

// Scheduler is what the API needs from the acquisition scheduler.
type Scheduler interface {
	handler.SchedulerView
	handler.WindSource
	handler.Refresher
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	Registry    *resilience.Registry

	Scheduler Scheduler
	Balloons  handler.BalloonSource

	// Tokens enables the admin routes. Nil leaves them unmounted.
	Tokens *auth.TokenService

	// AllowedOrigins restricts the WebSocket stream by Origin header. Empty allows all.
	AllowedOrigins []string

	// StreamDone closes every open stream when closed.
	StreamDone <-chan struct{}

	RequireTLS bool

	// RateLimit applies to the public read endpoints.
	// Default: middleware.StandardRateLimit
	RateLimit middleware.RateLimitConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	readLimit := cfg.RateLimit
	if readLimit.RequestLimit <= 0 || readLimit.WindowLength <= 0 {
		readLimit = middleware.StandardRateLimit
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Scheduler: cfg.Scheduler,
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		if cfg.Scheduler != nil {
			windHandler := handler.NewWindHandler(handler.WindConfig{
				Source:         cfg.Scheduler,
				AllowedOrigins: cfg.AllowedOrigins,
				Done:           cfg.StreamDone,
				Metrics:        cfg.Metrics,
				Logger:         cfg.Logger,
			})

			r.Route("/wind", func(r chi.Router) {
				r.With(middleware.RateLimitByIP(readLimit)).Get("/", windHandler.Get)
				r.With(middleware.RateLimitByIP(readLimit)).Get("/geojson", windHandler.GeoJSON)
				r.With(middleware.RateLimitByIP(middleware.StreamRateLimit)).Get("/stream", windHandler.Stream)
			})
		}

		if cfg.Balloons != nil {
			balloonHandler := handler.NewBalloonHandler(cfg.Balloons, cfg.Logger)
			r.With(middleware.RateLimitByIP(readLimit)).Get("/balloons/trails", balloonHandler.Trails)
		}

		if cfg.Tokens != nil && cfg.Scheduler != nil {
			adminHandler := handler.NewAdminHandler(cfg.Scheduler, cfg.Logger)
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireScope(cfg.Tokens, auth.ScopeAdmin))
				r.Use(middleware.RateLimitBySubject(middleware.AdminRateLimit))
				r.Post("/refresh", adminHandler.Refresh)
			})
		}
	})

	return r
}
