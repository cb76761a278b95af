package wind

import (
	"math"
	"time"

	"github.com/windgrid/windgrid/internal/tilegrid"
)

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// CircularMean returns the vector mean of angles in degrees, normalised to [0, 360).
// Each angle contributes a unit vector, so 350° and 10° average to 0°, not 180°.
func CircularMean(degrees []float64) float64 {
	if len(degrees) == 0 {
		return 0
	}

	var x, y float64
	for _, d := range degrees {
		rad := math.Mod(d, 360) * math.Pi / 180
		x += math.Cos(rad)
		y += math.Sin(rad)
	}

	return NormalizeDegrees(math.Atan2(y/float64(len(degrees)), x/float64(len(degrees))) * 180 / math.Pi)
}

// NormalizeDegrees maps any angle into [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// Tiny negative inputs can round up to exactly 360.
	if deg >= 360 {
		deg = 0
	}
	return deg
}

// Reduce collapses a raw series into a Summary for the tile.
// Either series being empty yields ErrNoSamples: an empty tile is a failure, not a calm reading.
func Reduce(tile tilegrid.Tile, series Series, fetchedAt time.Time) (Summary, error) {
	if len(series.Speeds) == 0 || len(series.Directions) == 0 {
		return Summary{}, ErrNoSamples
	}
	if len(series.Speeds) != len(series.Directions) {
		return Summary{}, ErrSeriesMismatch
	}

	speed := Mean(series.Speeds)
	if speed < 0 {
		speed = 0
	}

	return Summary{
		Tile:        tile,
		Speed:       speed,
		Direction:   CircularMean(series.Directions),
		SampleCount: len(series.Speeds),
		FetchedAt:   fetchedAt,
	}, nil
}
