package worker

import (
	"time"

	"github.com/windgrid/windgrid/internal/tilegrid"
	"github.com/windgrid/windgrid/internal/wind"
)

// Phase is the scheduler's position in the batch state machine.
type Phase string

// Scheduler phases.
const (
	PhaseIdle        Phase = "idle"
	PhaseSlowPass    Phase = "slow_pass"
	PhaseRetryBurst  Phase = "retry_burst"
	PhaseBatchDone   Phase = "batch_done"
	PhaseRefreshWait Phase = "refresh_wait"
)

// coverage pairs the covered-key set with the published accumulator.
// A key is in covered iff exactly one summary for it is in summaries.
type coverage struct {
	covered   map[tilegrid.Key]struct{}
	summaries []wind.Summary
}

func newCoverage() coverage {
	return coverage{covered: make(map[tilegrid.Key]struct{})}
}

// add appends s unless its tile is already covered.
func (c *coverage) add(s wind.Summary) bool {
	key := s.Key()
	if _, ok := c.covered[key]; ok {
		return false
	}
	c.covered[key] = struct{}{}
	c.summaries = append(c.summaries, s)
	return true
}

func (c *coverage) has(key tilegrid.Key) bool {
	_, ok := c.covered[key]
	return ok
}

func (c *coverage) reset() {
	c.covered = make(map[tilegrid.Key]struct{})
	c.summaries = nil
}

// cycleState tracks progress within one refresh cycle.
type cycleState struct {
	number           int64
	batchesCompleted int
	phase            Phase
}

// Snapshot is an immutable copy of the published wind field.
type Snapshot struct {
	Summaries        []wind.Summary `json:"summaries"`
	Loading          bool           `json:"loading"`
	Error            string         `json:"error,omitempty"`
	Cycle            int64          `json:"cycle"`
	Phase            Phase          `json:"phase"`
	BatchesCompleted int            `json:"batchesCompleted"`
	Covered          int            `json:"covered"`
	Total            int            `json:"total"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Complete reports whether every tile of the grid is covered.
func (s Snapshot) Complete() bool {
	return s.Total > 0 && s.Covered == s.Total
}

// Stats are running totals since the scheduler was created.
type Stats struct {
	Batches           int64         `json:"batches"`
	FailedBatches     int64         `json:"failedBatches"`
	TilesFetched      int64         `json:"tilesFetched"`
	TilesFailed       int64         `json:"tilesFailed"`
	TilesRecovered    int64         `json:"tilesRecovered"`
	Cycles            int64         `json:"cycles"`
	LastBatchAt       time.Time     `json:"lastBatchAt"`
	LastBatchDuration time.Duration `json:"lastBatchDuration"`
}
