package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/windgrid/windgrid/internal/gate"
	"github.com/windgrid/windgrid/internal/tilegrid"
	"github.com/windgrid/windgrid/internal/wind"
)

// ErrNoSampler is returned when a scheduler is created without a sampler.
var ErrNoSampler = errors.New("scheduler requires a sampler")

// BatchError is an unexpected failure while orchestrating a batch. It is surfaced through
// Snapshot.Error and never stops the loop.
type BatchError struct {
	Cycle int64
	Batch int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d of cycle %d: %v", e.Batch, e.Cycle, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// StepResult describes one pass of the scheduler loop.
type StepResult struct {
	// Phase is PhaseBatchDone after a batch ran, or PhaseRefreshWait when the grid was
	// already fully covered.
	Phase Phase

	// Delay is how long the loop waits before the next step.
	Delay time.Duration

	// Batch holds the keys attempted, in grid order.
	Batch []tilegrid.Key

	// Merged is the number of summaries added to the accumulator.
	Merged int

	// Recovered holds the keys that failed the slow pass and succeeded in the retry burst.
	Recovered []tilegrid.Key

	// Missed holds the keys still uncovered after the retry burst.
	Missed []tilegrid.Key

	// Err is a *BatchError when the batch failed.
	Err error
}

// SchedulerConfig holds the collaborators of a Scheduler.
type SchedulerConfig struct {
	Config  Config
	Sampler wind.Sampler

	// Gate throttles every sampler call. If nil, a gate with the default limit is created.
	Gate *gate.Gate

	// Repository persists merged batches (optional).
	Repository wind.Repository

	// Metrics records OpenTelemetry instruments (optional).
	Metrics *Metrics

	// Tiles overrides the generated global grid (optional). Order is acquisition order.
	Tiles []tilegrid.Tile

	// StartCycle is the number of the first cycle.
	// Default: 1
	StartCycle int64

	Logger zerolog.Logger
}

// Scheduler is the single writer of coverage and cycle state.
type Scheduler struct {
	cfg     Config
	tiles   []tilegrid.Tile
	sampler wind.Sampler
	gate    *gate.Gate
	repo    wind.Repository
	metrics *Metrics
	logger  zerolog.Logger

	mu        sync.RWMutex
	cov       coverage
	cycle     cycleState
	loading   bool
	lastErr   string
	updatedAt time.Time
	stats     Stats

	subMu   sync.Mutex
	subs    map[int]chan Snapshot
	nextSub int

	force chan struct{}
	ready atomic.Bool
}

// NewScheduler validates cfg, generates the grid and returns an idle scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if err := cfg.Config.Validate(); err != nil {
		return nil, err
	}
	if cfg.Sampler == nil {
		return nil, ErrNoSampler
	}

	tiles := append([]tilegrid.Tile(nil), cfg.Tiles...)
	if len(tiles) == 0 {
		var err error
		tiles, err = tilegrid.Generate(cfg.Config.TileSize)
		if err != nil {
			return nil, fmt.Errorf("generating grid: %w", err)
		}
	}

	g := cfg.Gate
	if g == nil {
		var err error
		g, err = gate.New(gate.DefaultConfig())
		if err != nil {
			return nil, err
		}
	}

	startCycle := cfg.StartCycle
	if startCycle <= 0 {
		startCycle = 1
	}

	return &Scheduler{
		cfg:     cfg.Config,
		tiles:   tiles,
		sampler: cfg.Sampler,
		gate:    g,
		repo:    cfg.Repository,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		cov:     newCoverage(),
		cycle:   cycleState{number: startCycle, phase: PhaseIdle},
		subs:    make(map[int]chan Snapshot),
		force:   make(chan struct{}, 1),
	}, nil
}

// Run drives the loop until ctx is done and returns the context error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Int("tiles", len(s.tiles)).
		Int("batch_size", s.cfg.BatchSize).
		Int("concurrency", s.gate.Limit()).
		Str("sampler", s.sampler.Name()).
		Msg("starting tile acquisition")

	for {
		res, err := s.Step(ctx)
		if err != nil {
			s.logger.Info().Err(err).Msg("tile acquisition stopped")
			return err
		}

		forced, err := s.wait(ctx, res.Delay)
		if err != nil {
			s.logger.Info().Err(err).Msg("tile acquisition stopped")
			return err
		}

		if res.Phase == PhaseRefreshWait || forced {
			s.ResetCycle(ctx)
		}
	}
}

// Step runs one batch, or reports PhaseRefreshWait when nothing remains. The returned
// error is non-nil only when ctx ended; batch failures are reported in StepResult.Err.
func (s *Scheduler) Step(ctx context.Context) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	batch := s.nextBatch()
	if len(batch) == 0 {
		s.setPhase(PhaseRefreshWait)
		s.logger.Info().
			Dur("refresh_in", s.cfg.RefreshInterval).
			Msg("grid fully covered, waiting for refresh")
		return StepResult{Phase: PhaseRefreshWait, Delay: s.cfg.RefreshInterval}, nil
	}

	start := time.Now()
	cycle, batchNo := s.beginBatch()
	res := StepResult{Phase: PhaseBatchDone, Batch: tilegrid.Keys(batch)}

	outcome, err := s.acquire(ctx, batch)
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.abandonBatch()
		return res, ctxErr
	}

	var merged []wind.Summary
	if err == nil {
		merged = s.merge(cycle, outcome.summaries)
		res.Merged = len(merged)
		res.Recovered = outcome.recovered
		res.Missed = outcome.missed
		err = s.persist(ctx, cycle, merged)
	}

	if err != nil {
		res.Err = &BatchError{Cycle: cycle, Batch: batchNo, Err: err}
		s.logger.Error().
			Err(err).
			Int64("cycle", cycle).
			Int("batch", batchNo).
			Msg("batch failed")
	}

	res.Delay = s.finishBatch(ctx, res, outcome.failures, time.Since(start))
	return res, nil
}

// ResetCycle clears coverage and the accumulator and starts a new cycle from tile 0.
func (s *Scheduler) ResetCycle(ctx context.Context) {
	s.mu.Lock()
	s.cov.reset()
	s.cycle.number++
	s.cycle.batchesCompleted = 0
	s.cycle.phase = PhaseIdle
	s.lastErr = ""
	s.stats.Cycles++
	s.updatedAt = time.Now()
	cycle := s.cycle.number
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.recordCycle(ctx)
	s.publish(snap)

	s.logger.Info().Int64("cycle", cycle).Msg("started new refresh cycle")

	if s.repo != nil {
		if err := s.repo.DeleteBefore(ctx, cycle-1); err != nil {
			s.logger.Warn().Err(err).Int64("cycle", cycle).Msg("failed to prune old cycles")
		}
	}
}

// ForceRefresh asks the loop to reset the cycle at its next wait, cutting the wait short.
// It returns false when a request is already pending.
func (s *Scheduler) ForceRefresh() bool {
	select {
	case s.force <- struct{}{}:
		return true
	default:
		return false
	}
}

// Snapshot returns a copy of the published state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Stats returns a copy of the running totals.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Ready reports whether at least one batch has finished.
func (s *Scheduler) Ready() bool {
	return s.ready.Load()
}

// Tiles returns a copy of the grid in acquisition order.
func (s *Scheduler) Tiles() []tilegrid.Tile {
	out := make([]tilegrid.Tile, len(s.tiles))
	copy(out, s.tiles)
	return out
}

// Subscribe returns a channel that receives the current snapshot and then one snapshot per
// publication. A slow reader only ever sees the latest snapshot. Call the returned func to
// unsubscribe; it closes the channel.
func (s *Scheduler) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.subMu.Lock()
	ch <- s.Snapshot()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

// nextBatch returns the first BatchSize uncovered tiles in grid order.
func (s *Scheduler) nextBatch() []tilegrid.Tile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch := make([]tilegrid.Tile, 0, s.cfg.BatchSize)
	for _, t := range s.tiles {
		if s.cov.has(t.Key()) {
			continue
		}
		batch = append(batch, t)
		if len(batch) == s.cfg.BatchSize {
			break
		}
	}
	return batch
}

func (s *Scheduler) beginBatch() (cycle int64, batchNo int) {
	s.mu.Lock()
	s.loading = true
	s.lastErr = ""
	s.cycle.phase = PhaseSlowPass
	cycle = s.cycle.number
	batchNo = s.cycle.batchesCompleted + 1
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
	return cycle, batchNo
}

type batchOutcome struct {
	summaries []wind.Summary
	recovered []tilegrid.Key
	missed    []tilegrid.Key
	failures  int64
}

// acquire runs the slow pass and the retry burst for one batch.
func (s *Scheduler) acquire(ctx context.Context, batch []tilegrid.Tile) (out batchOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch panicked: %v", r)
		}
	}()

	got := make([]*wind.Summary, len(batch))
	var failures atomic.Int64

	for start := 0; start < len(batch); start += s.cfg.SubBatchSize {
		end := min(start+s.cfg.SubBatchSize, len(batch))
		idx := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			idx = append(idx, i)
		}

		s.fetchAll(ctx, PhaseSlowPass, batch, idx, got, &failures)

		if err := sleep(ctx, s.cfg.SubBatchDelay); err != nil {
			return out, err
		}
	}

	var retry []int
	for i := range batch {
		if got[i] == nil {
			retry = append(retry, i)
		}
	}

	if len(retry) > 0 {
		s.setPhase(PhaseRetryBurst)
		s.fetchAll(ctx, PhaseRetryBurst, batch, retry, got, &failures)
	}

	if err := ctx.Err(); err != nil {
		return out, err
	}

	for i, t := range batch {
		if got[i] == nil {
			out.missed = append(out.missed, t.Key())
			continue
		}
		out.summaries = append(out.summaries, *got[i])
	}
	for _, i := range retry {
		if got[i] != nil {
			out.recovered = append(out.recovered, batch[i].Key())
		}
	}
	out.failures = failures.Load()

	return out, nil
}

// fetchAll samples batch[i] for every i in idx concurrently through the gate and waits for
// all of them. Slots are taken in idx order before each fetch starts. Successes are
// written to got[i].
func (s *Scheduler) fetchAll(ctx context.Context, phase Phase, batch []tilegrid.Tile, idx []int, got []*wind.Summary, failures *atomic.Int64) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for _, i := range idx {
		release, err := s.gate.Acquire(ctx)
		if err != nil {
			// ctx ended; the caller discards the batch.
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			tile := batch[i]
			var summary wind.Summary
			err := gate.Held(ctx, release, func(ctx context.Context) error {
				var err error
				summary, err = s.sampler.Sample(ctx, tile)
				return err
			})
			s.metrics.recordTile(ctx, phase, err)
			if err != nil {
				failures.Add(1)
				s.logger.Debug().
					Err(err).
					Str("tile", string(tile.Key())).
					Str("phase", string(phase)).
					Msg("tile fetch failed")
				return
			}
			got[i] = &summary
		}()
	}
}

// merge appends summaries to the accumulator unless the cycle changed since the batch began.
// It returns the summaries actually added.
func (s *Scheduler) merge(cycle int64, summaries []wind.Summary) []wind.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cycle.number != cycle {
		return nil
	}

	added := make([]wind.Summary, 0, len(summaries))
	for _, sum := range summaries {
		if s.cov.add(sum) {
			added = append(added, sum)
		}
	}
	return added
}

func (s *Scheduler) persist(ctx context.Context, cycle int64, summaries []wind.Summary) error {
	if s.repo == nil || len(summaries) == 0 {
		return nil
	}
	if err := s.repo.SaveBatch(ctx, cycle, summaries); err != nil {
		return fmt.Errorf("saving batch: %w", err)
	}
	return nil
}

// finishBatch advances the counter, picks the next delay and publishes.
func (s *Scheduler) finishBatch(ctx context.Context, res StepResult, failures int64, took time.Duration) time.Duration {
	s.mu.Lock()
	if res.Err == nil {
		s.cycle.batchesCompleted++
	}

	delay := s.cfg.SweepDelay
	if s.cycle.batchesCompleted >= s.cfg.SweepBatches {
		delay = s.cfg.SteadyDelay
		if s.cfg.ThresholdPolicy == PolicyRearm {
			s.cycle.batchesCompleted = 0
		}
	}

	s.loading = false
	if res.Err != nil {
		s.lastErr = res.Err.Error()
		s.stats.FailedBatches++
	}
	s.cycle.phase = PhaseBatchDone
	s.stats.Batches++
	s.stats.TilesFetched += int64(res.Merged)
	s.stats.TilesFailed += failures
	s.stats.TilesRecovered += int64(len(res.Recovered))
	s.stats.LastBatchAt = time.Now()
	s.stats.LastBatchDuration = took
	s.updatedAt = time.Now()
	covered := len(s.cov.summaries)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.ready.Store(true)
	s.metrics.recordBatch(ctx, res.Err, covered)
	s.publish(snap)

	s.logger.Info().
		Int64("cycle", snap.Cycle).
		Int("merged", res.Merged).
		Int("recovered", len(res.Recovered)).
		Int("missed", len(res.Missed)).
		Int("covered", snap.Covered).
		Int("total", snap.Total).
		Dur("took", took).
		Dur("next_in", delay).
		Msg("batch complete")

	return delay
}

func (s *Scheduler) abandonBatch() {
	s.mu.Lock()
	s.loading = false
	s.cycle.phase = PhaseIdle
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *Scheduler) setPhase(p Phase) {
	s.mu.Lock()
	s.cycle.phase = p
	s.updatedAt = time.Now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(snap)
}

func (s *Scheduler) snapshotLocked() Snapshot {
	summaries := make([]wind.Summary, len(s.cov.summaries))
	copy(summaries, s.cov.summaries)
	return Snapshot{
		Summaries:        summaries,
		Loading:          s.loading,
		Error:            s.lastErr,
		Cycle:            s.cycle.number,
		Phase:            s.cycle.phase,
		BatchesCompleted: s.cycle.batchesCompleted,
		Covered:          len(s.cov.covered),
		Total:            len(s.tiles),
		UpdatedAt:        s.updatedAt,
	}
}

// publish hands snap to every subscriber, replacing any snapshot it has not read yet.
func (s *Scheduler) publish(snap Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// wait sleeps for d. It returns forced=true when ForceRefresh interrupted the wait.
func (s *Scheduler) wait(ctx context.Context, d time.Duration) (forced bool, err error) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.force:
		s.logger.Info().Msg("forced refresh requested")
		return true, nil
	case <-t.C:
		return false, nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
