// Package wind holds the per-tile wind summary model, its reduction from raw series,
// and persistence of merged batches.
package wind

import (
	"context"
	"errors"
	"time"

	"github.com/windgrid/windgrid/internal/tilegrid"
)

// Wind errors.
var (
	// ErrNoSamples is returned when a provider response has no usable speed or direction series.
	ErrNoSamples = errors.New("no wind samples for tile")

	// ErrSeriesMismatch is returned when the speed and direction series differ in length.
	ErrSeriesMismatch = errors.New("speed and direction series differ in length")

	// ErrProviderUnavailable is returned when the forecast provider cannot be reached.
	ErrProviderUnavailable = errors.New("wind provider unavailable")
)

// Summary is the reduced wind observation for one tile.
type Summary struct {
	Tile tilegrid.Tile `json:"tile"`

	// Speed is the arithmetic mean of the hourly series (provider units, km/h for Open-Meteo).
	Speed float64 `json:"speed"`

	// Direction is the circular mean of the hourly series in degrees, [0, 360).
	// Meteorological convention: the direction the wind blows from.
	Direction float64 `json:"direction"`

	SampleCount int       `json:"sampleCount"`
	FetchedAt   time.Time `json:"fetchedAt"`
}

// Key returns the key of the summarised tile.
func (s Summary) Key() tilegrid.Key {
	return s.Tile.Key()
}

// Series is a raw hourly speed/direction time series for one point.
type Series struct {
	Speeds     []float64
	Directions []float64
}

// Sampler fetches and reduces the wind series for a single tile.
// Implementations never retry; a returned error means the tile produced no summary.
type Sampler interface {
	Sample(ctx context.Context, tile tilegrid.Tile) (Summary, error)

	// Name returns the provider name for logging.
	Name() string
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(ctx context.Context, tile tilegrid.Tile) (Summary, error)

// Sample calls f.
func (f SamplerFunc) Sample(ctx context.Context, tile tilegrid.Tile) (Summary, error) {
	return f(ctx, tile)
}

// Name returns a fixed name for function samplers.
func (f SamplerFunc) Name() string {
	return "func"
}
