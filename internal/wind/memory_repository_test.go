package wind_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windgrid/windgrid/internal/tilegrid"
	"github.com/windgrid/windgrid/internal/wind"
)

func summaryAt(lat, lon, speed float64) wind.Summary {
	return wind.Summary{
		Tile:        tilegrid.NewTile(lat, lon, 10),
		Speed:       speed,
		SampleCount: 1,
		FetchedAt:   time.Now(),
	}
}

func TestInMemoryRepository_SaveAndList(t *testing.T) {
	repo := wind.NewInMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveBatch(ctx, 1, []wind.Summary{summaryAt(-85, -175, 1), summaryAt(-85, -165, 2)}))
	require.NoError(t, repo.SaveBatch(ctx, 1, []wind.Summary{summaryAt(-85, -155, 3)}))

	got, err := repo.ListCycle(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, tilegrid.KeyFor(-85, -175), got[0].Key())
	assert.Equal(t, tilegrid.KeyFor(-85, -155), got[2].Key())
}

func TestInMemoryRepository_ReplayKeepsFirst(t *testing.T) {
	repo := wind.NewInMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.SaveBatch(ctx, 1, []wind.Summary{summaryAt(5, 5, 1)}))
	require.NoError(t, repo.SaveBatch(ctx, 1, []wind.Summary{summaryAt(5, 5, 99)}))

	got, err := repo.ListCycle(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Speed)
}

func TestInMemoryRepository_Cycles(t *testing.T) {
	repo := wind.NewInMemoryRepository()
	ctx := context.Background()

	_, err := repo.LatestCycle(ctx)
	assert.ErrorIs(t, err, wind.ErrCycleNotFound)

	_, err = repo.ListCycle(ctx, 7)
	assert.ErrorIs(t, err, wind.ErrCycleNotFound)

	for _, cycle := range []int64{1, 3, 2} {
		require.NoError(t, repo.SaveBatch(ctx, cycle, []wind.Summary{summaryAt(5, 5, 1)}))
	}

	latest, err := repo.LatestCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest)

	require.NoError(t, repo.DeleteBefore(ctx, 3))

	_, err = repo.ListCycle(ctx, 2)
	assert.ErrorIs(t, err, wind.ErrCycleNotFound)
	_, err = repo.ListCycle(ctx, 3)
	assert.NoError(t, err)
}
