// Package config loads windgrid settings. Values come from defaults, then an optional YAML
// file named by WIND_CONFIG_FILE, then environment variables (optionally seeded from .env).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/windgrid/windgrid/internal/balloon"
	"github.com/windgrid/windgrid/internal/gate"
	"github.com/windgrid/windgrid/internal/wind/openmeteo"
	"github.com/windgrid/windgrid/internal/worker"
)

// FileEnv names the environment variable pointing at the YAML config file.
const FileEnv = "WIND_CONFIG_FILE"

// ValidationError lists every invalid setting found while loading.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Config is the complete runtime configuration of the windgrid binaries.
type Config struct {
	// Env is the deployment environment name.
	// Default: development
	Env string `yaml:"env"`

	// Port is the HTTP listen port.
	// Default: 8080
	Port string `yaml:"port"`

	// LogLevel is a zerolog level name.
	// Default: info
	LogLevel string `yaml:"log_level"`

	Scheduler worker.Config `yaml:"scheduler"`

	// Concurrency caps simultaneous sampler requests.
	// Default: 10
	Concurrency int `yaml:"concurrency"`

	// RequestTimeout bounds a single upstream HTTP request.
	// Default: 10s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// OpenMeteoBaseURL is the forecast endpoint.
	OpenMeteoBaseURL string `yaml:"open_meteo_base_url"`

	// BalloonBaseURL is the directory holding the hourly balloon snapshots.
	BalloonBaseURL string `yaml:"balloon_base_url"`

	// BalloonHours is the number of hourly snapshots fetched.
	// Default: 24
	BalloonHours int `yaml:"balloon_hours"`

	// JWTSecret signs admin tokens (HS256). Admin routes are disabled when empty.
	JWTSecret string `yaml:"jwt_secret"`

	// RateLimit is the number of requests per IP per RateWindow.
	// Default: 120 per minute
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`

	// RequireTLS rejects requests a proxy forwarded over plain HTTP.
	RequireTLS bool `yaml:"require_tls"`

	// AllowedOrigins restricts the wind stream by Origin header. Empty allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// PubSubConfig names the control subscription consumed by the worker.
// The worker runs without remote control when ProjectID is empty.
type PubSubConfig struct {
	ProjectID    string `yaml:"project_id"`
	Subscription string `yaml:"subscription"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Env:              "development",
		Port:             "8080",
		LogLevel:         "info",
		Scheduler:        worker.DefaultConfig(),
		Concurrency:      gate.DefaultLimit,
		RequestTimeout:   10 * time.Second,
		OpenMeteoBaseURL: openmeteo.DefaultBaseURL,
		BalloonBaseURL:   balloon.DefaultBaseURL,
		BalloonHours:     balloon.DefaultHours,
		RateLimit:        120,
		RateWindow:       time.Minute,
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			SampleRatio:  1,
		},
		PubSub: PubSubConfig{
			Subscription: "windgrid-control",
		},
	}
}

// Load reads .env (if present), the YAML file named by WIND_CONFIG_FILE (if set) and the
// environment, then validates the result. Problems are returned as a *ValidationError.
func Load() (Config, error) {
	_ = godotenv.Load(".env") //nolint:errcheck // .env is optional

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return cfg, err
		}
	}

	verr := &ValidationError{}
	cfg.applyEnv(verr)
	cfg.validate(verr)
	if len(verr.Problems) > 0 {
		return cfg, verr
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(verr *ValidationError) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				verr.add("%s: not an integer: %q", key, v)
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				verr.add("%s: not a number: %q", key, v)
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				verr.add("%s: not a duration: %q", key, v)
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				verr.add("%s: not a boolean: %q", key, v)
				return
			}
			*dst = b
		}
	}

	str("APP_ENV", &c.Env)
	str("APP_PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)

	float("WIND_TILE_SIZE_DEG", &c.Scheduler.TileSize)
	integer("WIND_BATCH_SIZE", &c.Scheduler.BatchSize)
	integer("WIND_SUB_BATCH_SIZE", &c.Scheduler.SubBatchSize)
	duration("WIND_SUB_BATCH_DELAY", &c.Scheduler.SubBatchDelay)
	duration("WIND_SWEEP_DELAY", &c.Scheduler.SweepDelay)
	duration("WIND_STEADY_DELAY", &c.Scheduler.SteadyDelay)
	integer("WIND_SWEEP_BATCHES", &c.Scheduler.SweepBatches)
	duration("WIND_REFRESH_INTERVAL", &c.Scheduler.RefreshInterval)
	if v, ok := lookup("WIND_THRESHOLD_POLICY"); ok {
		c.Scheduler.ThresholdPolicy = worker.ThresholdPolicy(strings.ToLower(v))
	}
	integer("WIND_CONCURRENCY", &c.Concurrency)
	duration("WIND_REQUEST_TIMEOUT", &c.RequestTimeout)

	str("OPEN_METEO_BASE_URL", &c.OpenMeteoBaseURL)
	str("BALLOON_BASE_URL", &c.BalloonBaseURL)
	integer("BALLOON_HOURS", &c.BalloonHours)

	str("JWT_SIGNING_KEY", &c.JWTSecret)
	integer("RATE_LIMIT_REQUESTS", &c.RateLimit)
	duration("RATE_LIMIT_WINDOW", &c.RateWindow)
	boolean("REQUIRE_TLS", &c.RequireTLS)
	if v, ok := lookup("WIND_ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}

	boolean("OTEL_ENABLED", &c.Telemetry.Enabled)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	float("OTEL_SAMPLE_RATIO", &c.Telemetry.SampleRatio)

	str("PUBSUB_PROJECT_ID", &c.PubSub.ProjectID)
	str("PUBSUB_SUBSCRIPTION", &c.PubSub.Subscription)
}

func (c *Config) validate(verr *ValidationError) {
	if err := c.Scheduler.Validate(); err != nil {
		verr.add("scheduler: %v", err)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		verr.add("log level: %v", err)
	}
	if c.Concurrency <= 0 {
		verr.add("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.RequestTimeout <= 0 {
		verr.add("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.BalloonHours <= 0 {
		verr.add("balloon hours must be positive, got %d", c.BalloonHours)
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		verr.add("rate limit must be positive")
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		verr.add("port must be in 1..65535, got %q", c.Port)
	}
	checkURL(verr, "open-meteo base url", c.OpenMeteoBaseURL)
	checkURL(verr, "balloon base url", c.BalloonBaseURL)
}

// Level returns the configured zerolog level, falling back to info.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func checkURL(verr *ValidationError, name, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		verr.add("%s must be an absolute URL, got %q", name, raw)
	}
}
