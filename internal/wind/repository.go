package wind

import (
	"context"
	"errors"
)

// ErrCycleNotFound is returned when no summaries exist for a cycle.
var ErrCycleNotFound = errors.New("wind cycle not found")

// Repository persists merged batches of summaries, partitioned by refresh cycle.
type Repository interface {
	// SaveBatch stores summaries for a cycle. A tile already stored for the cycle is kept
	// as-is, so replays are harmless.
	SaveBatch(ctx context.Context, cycle int64, summaries []Summary) error

	// ListCycle returns the summaries stored for a cycle in insertion order.
	ListCycle(ctx context.Context, cycle int64) ([]Summary, error)

	// LatestCycle returns the highest cycle number with stored summaries.
	// Returns ErrCycleNotFound when nothing has been stored.
	LatestCycle(ctx context.Context) (int64, error)

	// DeleteBefore removes all cycles older than the given one.
	DeleteBefore(ctx context.Context, cycle int64) error
}
