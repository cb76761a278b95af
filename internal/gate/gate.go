// Package gate caps the number of concurrently executing tasks process-wide.
//
// Waiters are admitted in FIFO order. A task that fails, panics or is cancelled
// releases its slot exactly like one that succeeds.
package gate

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultLimit is the default number of concurrent tasks.
const DefaultLimit = 10

// ErrInvalidLimit is returned when the gate limit is not positive.
var ErrInvalidLimit = errors.New("gate limit must be positive")

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Config holds configuration for a Gate.
type Config struct {
	// Limit is the maximum number of tasks running at once.
	// Default: 10
	Limit int

	// Metrics records in-flight and wait-time instruments (optional).
	Metrics *Metrics
}

// DefaultConfig returns the default gate configuration.
func DefaultConfig() Config {
	return Config{Limit: DefaultLimit}
}

// Gate is a bounded, FIFO admission gate.
type Gate struct {
	sem      *semaphore.Weighted
	limit    int
	inFlight atomic.Int64
	peak     atomic.Int64
	metrics  *Metrics
}

// New creates a gate admitting at most cfg.Limit concurrent tasks.
func New(cfg Config) (*Gate, error) {
	if cfg.Limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return &Gate{
		sem:     semaphore.NewWeighted(int64(cfg.Limit)),
		limit:   cfg.Limit,
		metrics: cfg.Metrics,
	}, nil
}

// Acquire waits for a slot and returns the func that gives it back. Callers that
// acquire from one goroutine in sequence are admitted in that sequence. release may
// be called more than once; only the first call frees the slot.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for gate: %w", err)
	}
	g.metrics.recordWait(ctx, time.Since(start))

	n := g.inFlight.Add(1)
	g.raisePeak(n)
	g.metrics.addInFlight(ctx, 1)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.inFlight.Add(-1)
			g.metrics.addInFlight(ctx, -1)
			g.sem.Release(1)
		})
	}, nil
}

// Do waits for a slot, runs fn and releases the slot.
// If ctx ends while waiting, fn is not run and the context error is returned.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	return Held(ctx, release, fn)
}

// Held runs fn on a slot already taken with Acquire and releases it afterwards.
// A panic in fn is returned as a *PanicError.
func Held(ctx context.Context, release func(), fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		release()
	}()

	return fn(ctx)
}

// Run passes fn through g and returns its result.
func Run[T any](ctx context.Context, g *Gate, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

// Limit returns the configured concurrency cap.
func (g *Gate) Limit() int {
	return g.limit
}

// InFlight returns the number of tasks currently running.
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}

// Peak returns the highest InFlight value observed since creation.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}

func (g *Gate) raisePeak(n int64) {
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return
		}
	}
}
