package balloon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/windgrid/windgrid/internal/provider/resilience"
)

const (
	// ProviderName identifies the balloon snapshot source.
	ProviderName = "windborne"

	// DefaultBaseURL serves 00.json through 23.json.
	DefaultBaseURL = "https://windborne-jet.vercel.app/api/treasure"

	// DefaultHours is the number of hourly snapshots fetched.
	DefaultHours = 24
)

// ClientConfig holds configuration for the balloon snapshot client.
type ClientConfig struct {
	// BaseURL is the directory holding the hourly snapshots (optional).
	BaseURL string

	// Hours is the number of snapshots to fetch.
	// Default: 24
	Hours int

	// HTTPClient is the HTTP client to use (optional).
	// If nil, a resilient client with two retries is created.
	HTTPClient *resilience.Client

	// Registry receives success and failure outcomes (optional).
	Registry *resilience.Registry

	// Now returns the reference time for sample timestamps. Defaults to time.Now.
	Now func() time.Time

	Logger zerolog.Logger
}

// Client fetches hourly balloon snapshots.
type Client struct {
	baseURL    string
	hours      int
	httpClient *resilience.Client
	registry   *resilience.Registry
	now        func() time.Time
	logger     zerolog.Logger
}

// NewClient creates a new balloon snapshot client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	hours := cfg.Hours
	if hours <= 0 {
		hours = DefaultHours
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rcfg := resilience.DefaultClientConfig(ProviderName)
		rcfg.MaxRetries = 2
		rcfg.Registry = cfg.Registry
		httpClient = resilience.NewClient(rcfg)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:    baseURL,
		hours:      hours,
		httpClient: httpClient,
		registry:   cfg.Registry,
		now:        now,
		logger:     cfg.Logger,
	}
}

// FetchHistory fetches every hourly snapshot in sequence and merges rows by array index
// into histories ordered by balloon index. Missing or corrupt snapshots are skipped, as are
// rows without a full lat/lon/alt triple.
func (c *Client) FetchHistory(ctx context.Context) ([]History, error) {
	now := c.now()
	merged := make(map[int]*History)
	fetched := 0

	for hour := 0; hour < c.hours; hour++ {
		rows, err := c.fetchSnapshot(ctx, hour)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn().Err(err).Int("hour", hour).Msg("skipping balloon snapshot")
			c.record(err)
			continue
		}
		c.record(nil)
		fetched++

		ts := now.Add(-time.Duration(hour) * time.Hour)
		for idx, raw := range rows {
			sample, ok := parseRow(raw)
			if !ok {
				continue
			}
			sample.Hour = hour
			sample.Timestamp = ts

			h, exists := merged[idx]
			if !exists {
				h = &History{ID: fmt.Sprintf("balloon_%d", idx), Index: idx}
				merged[idx] = h
			}
			h.Samples = append(h.Samples, sample)
		}
	}

	if fetched == 0 {
		return nil, ErrNoSnapshots
	}

	histories := make([]History, 0, len(merged))
	for _, h := range merged {
		histories = append(histories, *h)
	}
	sort.Slice(histories, func(i, j int) bool { return histories[i].Index < histories[j].Index })

	return histories, nil
}

func (c *Client) fetchSnapshot(ctx context.Context, hour int) ([]json.RawMessage, error) {
	url := fmt.Sprintf("%s/%02d.json", c.baseURL, hour)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return rows, nil
}

// parseRow reads a [lat, lon, alt] triple. Anything else is rejected.
func parseRow(raw json.RawMessage) (Sample, bool) {
	var row []*float64
	if err := json.Unmarshal(raw, &row); err != nil || len(row) < 3 {
		return Sample{}, false
	}
	if row[0] == nil || row[1] == nil || row[2] == nil {
		return Sample{}, false
	}
	return Sample{Lat: *row[0], Lon: *row[1], Alt: *row[2]}, true
}

func (c *Client) record(err error) {
	if c.registry == nil {
		return
	}
	if err != nil {
		c.registry.RecordFailure(ProviderName, err)
		return
	}
	c.registry.RecordSuccess(ProviderName)
}
