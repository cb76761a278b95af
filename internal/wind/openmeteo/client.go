// Package openmeteo samples hourly wind series from the Open-Meteo forecast API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/windgrid/windgrid/internal/provider/resilience"
	"github.com/windgrid/windgrid/internal/tilegrid"
	"github.com/windgrid/windgrid/internal/wind"
)

const (
	// ProviderName identifies this wind provider.
	ProviderName = "open-meteo"

	// DefaultBaseURL is the Open-Meteo forecast endpoint.
	DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

	hourlyFields = "windspeed_10m,winddirection_10m"
)

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	// BaseURL is the forecast endpoint (optional, defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, a single-attempt resilient client named ProviderName is created.
	HTTPClient *resilience.Client

	// Registry receives success and failure outcomes (optional).
	Registry *resilience.Registry

	// Now returns the fetch timestamp. Defaults to time.Now.
	Now func() time.Time

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an Open-Meteo API client implementing wind.Sampler.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	registry   *resilience.Registry
	now        func() time.Time
	logger     zerolog.Logger
}

var _ wind.Sampler = (*Client)(nil)

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rcfg := resilience.DefaultClientConfig(ProviderName)
		rcfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(rcfg)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		registry:   cfg.Registry,
		now:        now,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Sample fetches the hourly series at the tile center and reduces it to a summary.
// Every failure path returns an error and no summary; nothing is retried here.
func (c *Client) Sample(ctx context.Context, tile tilegrid.Tile) (wind.Summary, error) {
	summary, err := c.sample(ctx, tile)
	if c.registry != nil {
		if err != nil {
			c.registry.RecordFailure(ProviderName, err)
		} else {
			c.registry.RecordSuccess(ProviderName)
		}
	}
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("tile", string(tile.Key())).
			Msg("wind sample failed")
	}
	return summary, err
}

func (c *Client) sample(ctx context.Context, tile tilegrid.Tile) (wind.Summary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(tile), http.NoBody)
	if err != nil {
		return wind.Summary{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wind.Summary{}, fmt.Errorf("%w: %w", wind.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return wind.Summary{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return wind.Summary{}, fmt.Errorf("decoding response: %w", err)
	}

	series, err := body.series()
	if err != nil {
		return wind.Summary{}, err
	}

	return wind.Reduce(tile, series, c.now())
}

func (c *Client) requestURL(tile tilegrid.Tile) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(tile.Lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(tile.Lon, 'f', -1, 64))
	q.Set("hourly", hourlyFields)
	q.Set("timezone", "UTC")
	return c.baseURL + "?" + q.Encode()
}

type forecastResponse struct {
	Hourly *struct {
		WindSpeed     []*float64 `json:"windspeed_10m"`
		WindDirection []*float64 `json:"winddirection_10m"`
	} `json:"hourly"`
}

// series pairs up the hourly arrays. Hours where either value is null are dropped;
// the arrays themselves must be present and of equal length.
func (r *forecastResponse) series() (wind.Series, error) {
	if r.Hourly == nil || len(r.Hourly.WindSpeed) == 0 || len(r.Hourly.WindDirection) == 0 {
		return wind.Series{}, wind.ErrNoSamples
	}
	if len(r.Hourly.WindSpeed) != len(r.Hourly.WindDirection) {
		return wind.Series{}, wind.ErrSeriesMismatch
	}

	s := wind.Series{
		Speeds:     make([]float64, 0, len(r.Hourly.WindSpeed)),
		Directions: make([]float64, 0, len(r.Hourly.WindDirection)),
	}
	for i, speed := range r.Hourly.WindSpeed {
		dir := r.Hourly.WindDirection[i]
		if speed == nil || dir == nil {
			continue
		}
		s.Speeds = append(s.Speeds, *speed)
		s.Directions = append(s.Directions, *dir)
	}
	return s, nil
}
