package handler_test

import (
	"context"
	"sync"
	"time"

	"github.com/windgrid/windgrid/internal/balloon"
	"github.com/windgrid/windgrid/internal/tilegrid"
	"github.com/windgrid/windgrid/internal/wind"
	"github.com/windgrid/windgrid/internal/worker"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeScheduler struct {
	mu      sync.Mutex
	snap    worker.Snapshot
	stats   worker.Stats
	ready   bool
	updates chan worker.Snapshot

	refreshes int
	queued    bool
}

func newFakeScheduler(snap worker.Snapshot) *fakeScheduler {
	return &fakeScheduler{snap: snap, updates: make(chan worker.Snapshot, 4), queued: true}
}

func (f *fakeScheduler) Snapshot() worker.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeScheduler) Stats() worker.Stats { return f.stats }
func (f *fakeScheduler) Ready() bool         { return f.ready }

func (f *fakeScheduler) Subscribe() (<-chan worker.Snapshot, func()) {
	ch := make(chan worker.Snapshot, 1)
	ch <- f.Snapshot()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case s := <-f.updates:
				select {
				case <-ch:
				default:
				}
				ch <- s
			}
		}
	}()
	var once sync.Once
	return ch, func() { once.Do(func() { close(done) }) }
}

func (f *fakeScheduler) ForceRefresh() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.queued
}

type fakeBalloons struct {
	histories []balloon.History
	err       error
}

func (f *fakeBalloons) Histories(context.Context) ([]balloon.History, error) {
	return f.histories, f.err
}

func summary(lat, lon, speed, dir float64) wind.Summary {
	return wind.Summary{
		Tile:        tilegrid.NewTile(lat, lon, tilegrid.DefaultTileSize),
		Speed:       speed,
		Direction:   dir,
		SampleCount: 24,
		FetchedAt:   fixedNow,
	}
}

func sampleSnapshot() worker.Snapshot {
	return worker.Snapshot{
		Summaries:        []wind.Summary{summary(-85, -175, 12, 270), summary(-85, -165, 30, 90)},
		Cycle:            3,
		Phase:            worker.PhaseBatchDone,
		BatchesCompleted: 1,
		Covered:          2,
		Total:            648,
		UpdatedAt:        fixedNow,
	}
}
