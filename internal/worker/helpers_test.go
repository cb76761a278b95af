package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/windgrid/windgrid/internal/gate"
	"github.com/windgrid/windgrid/internal/tilegrid"
	"github.com/windgrid/windgrid/internal/wind"
	"github.com/windgrid/windgrid/internal/worker"
)

var errTransient = errors.New("transient failure")

// fakeSampler records every call and fails according to fail(key, attempt).
type fakeSampler struct {
	fail  func(key tilegrid.Key, attempt int) bool
	delay time.Duration

	mu    sync.Mutex
	calls map[tilegrid.Key]int
	order []tilegrid.Key

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeSampler(fail func(tilegrid.Key, int) bool) *fakeSampler {
	return &fakeSampler{fail: fail, calls: make(map[tilegrid.Key]int)}
}

func (f *fakeSampler) Name() string { return "fake" }

func (f *fakeSampler) Sample(ctx context.Context, tile tilegrid.Tile) (wind.Summary, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	key := tile.Key()
	f.mu.Lock()
	f.calls[key]++
	attempt := f.calls[key]
	f.order = append(f.order, key)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return wind.Summary{}, ctx.Err()
		}
	}

	if f.fail != nil && f.fail(key, attempt) {
		return wind.Summary{}, errTransient
	}

	return wind.Summary{
		Tile:        tile,
		Speed:       5,
		Direction:   270,
		SampleCount: 24,
		FetchedAt:   time.Now(),
	}, nil
}

func (f *fakeSampler) callsFor(key tilegrid.Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeSampler) callOrder() []tilegrid.Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tilegrid.Key(nil), f.order...)
}

func (f *fakeSampler) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

// testConfig returns fast pacing over the 8-tile 90° grid.
func testConfig() worker.Config {
	cfg := worker.DefaultConfig()
	cfg.TileSize = 90
	cfg.BatchSize = 8
	cfg.SubBatchSize = 8
	cfg.SubBatchDelay = time.Millisecond
	cfg.SweepDelay = time.Millisecond
	cfg.SteadyDelay = 2 * time.Millisecond
	cfg.RefreshInterval = 5 * time.Millisecond
	return cfg
}

func newScheduler(t *testing.T, cfg worker.SchedulerConfig) *worker.Scheduler {
	t.Helper()
	if cfg.Gate == nil {
		g, err := gate.New(gate.Config{Limit: 10})
		require.NoError(t, err)
		cfg.Gate = g
	}
	cfg.Logger = zerolog.Nop()
	s, err := worker.NewScheduler(cfg)
	require.NoError(t, err)
	return s
}

func firstTiles(t *testing.T, n int) []tilegrid.Tile {
	t.Helper()
	tiles, err := tilegrid.Generate(90)
	require.NoError(t, err)
	return tiles[:n]
}

// consistent reports whether every summary key is unique and the counts agree.
func consistent(snap worker.Snapshot) bool {
	seen := make(map[tilegrid.Key]bool, len(snap.Summaries))
	for _, s := range snap.Summaries {
		if seen[s.Key()] {
			return false
		}
		seen[s.Key()] = true
	}
	return snap.Covered == len(snap.Summaries)
}

func requireConsistent(t *testing.T, snap worker.Snapshot) {
	t.Helper()
	require.True(t, consistent(snap), "coverage and accumulator diverged")
}
