// Package worker drives tile acquisition: it sweeps the global grid in batches, merges
// successful samples into the published wind field, and restarts the sweep on a fixed
// refresh interval.
package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/windgrid/windgrid/internal/tilegrid"
)

// ErrInvalidConfig is wrapped by every scheduler configuration error.
var ErrInvalidConfig = errors.New("invalid scheduler config")

// ThresholdPolicy decides what happens to the batch counter once it reaches SweepBatches.
type ThresholdPolicy string

const (
	// PolicyHold keeps the counter at or above the threshold, so every later batch in the
	// cycle waits SteadyDelay. The counter resets only with the cycle.
	PolicyHold ThresholdPolicy = "hold"

	// PolicyRearm resets the counter to zero as soon as the threshold is reached. The
	// following batches of the same cycle are paced by SweepDelay again.
	PolicyRearm ThresholdPolicy = "rearm"
)

// Config holds the pacing parameters of the acquisition scheduler.
type Config struct {
	// TileSize is the grid cell size in degrees.
	// Default: 10
	TileSize float64 `yaml:"tile_size_deg"`

	// BatchSize is the number of uncovered tiles taken per batch.
	// Default: 24
	BatchSize int `yaml:"batch_size"`

	// SubBatchSize bounds how many tiles of a batch are fetched together in the slow pass.
	// Default: 24
	SubBatchSize int `yaml:"sub_batch_size"`

	// SubBatchDelay is the pause after every slow-pass sub-batch.
	// Default: 5 seconds
	SubBatchDelay time.Duration `yaml:"sub_batch_delay"`

	// SweepDelay is the wait between batches while the counter is below SweepBatches.
	// Default: 1 minute
	SweepDelay time.Duration `yaml:"sweep_delay"`

	// SteadyDelay is the wait between batches once the counter reaches SweepBatches.
	// Default: 2 hours
	SteadyDelay time.Duration `yaml:"steady_delay"`

	// SweepBatches is the batch count separating the sweep and steady pacing.
	// Default: 27
	SweepBatches int `yaml:"sweep_batches"`

	// RefreshInterval is the wait between full coverage and the cycle reset.
	// Default: 2 hours
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// ThresholdPolicy selects how the counter behaves at SweepBatches.
	// Default: hold
	ThresholdPolicy ThresholdPolicy `yaml:"threshold_policy"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		TileSize:        tilegrid.DefaultTileSize,
		BatchSize:       24,
		SubBatchSize:    24,
		SubBatchDelay:   5 * time.Second,
		SweepDelay:      time.Minute,
		SteadyDelay:     2 * time.Hour,
		SweepBatches:    27,
		RefreshInterval: 2 * time.Hour,
		ThresholdPolicy: PolicyHold,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case !(c.TileSize > 0) || c.TileSize > 180:
		return fmt.Errorf("%w: tile size must be in (0, 180], got %v", ErrInvalidConfig, c.TileSize)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.SubBatchSize <= 0:
		return fmt.Errorf("%w: sub-batch size must be positive, got %d", ErrInvalidConfig, c.SubBatchSize)
	case c.SubBatchDelay < 0, c.SweepDelay < 0, c.SteadyDelay < 0, c.RefreshInterval < 0:
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	case c.SweepBatches < 0:
		return fmt.Errorf("%w: sweep batches must not be negative, got %d", ErrInvalidConfig, c.SweepBatches)
	case c.ThresholdPolicy != PolicyHold && c.ThresholdPolicy != PolicyRearm:
		return fmt.Errorf("%w: unknown threshold policy %q", ErrInvalidConfig, c.ThresholdPolicy)
	}
	return nil
}
