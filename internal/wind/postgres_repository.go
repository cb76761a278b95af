package wind

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL summary repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS wind_summaries (
	cycle        BIGINT           NOT NULL,
	tile_key     TEXT             NOT NULL,
	seq          BIGSERIAL,
	lat          DOUBLE PRECISION NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	north        DOUBLE PRECISION NOT NULL,
	south        DOUBLE PRECISION NOT NULL,
	east         DOUBLE PRECISION NOT NULL,
	west         DOUBLE PRECISION NOT NULL,
	speed        DOUBLE PRECISION NOT NULL,
	direction    DOUBLE PRECISION NOT NULL,
	sample_count INTEGER          NOT NULL,
	fetched_at   TIMESTAMPTZ      NOT NULL,
	PRIMARY KEY (cycle, tile_key)
)`

// EnsureSchema creates the summaries table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create wind_summaries: %w", err)
	}
	return nil
}

// SaveBatch stores summaries for a cycle in a single round trip.
func (r *PostgresRepository) SaveBatch(ctx context.Context, cycle int64, summaries []Summary) error {
	if len(summaries) == 0 {
		return nil
	}

	query := `
		INSERT INTO wind_summaries (
			cycle, tile_key, lat, lon, north, south, east, west,
			speed, direction, sample_count, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (cycle, tile_key) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, s := range summaries {
		batch.Queue(query,
			cycle, string(s.Key()),
			s.Tile.Lat, s.Tile.Lon, s.Tile.North, s.Tile.South, s.Tile.East, s.Tile.West,
			s.Speed, s.Direction, s.SampleCount, s.FetchedAt,
		)
	}

	res := r.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range summaries {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("insert wind summary: %w", err)
		}
	}

	return nil
}

// ListCycle returns the summaries stored for a cycle in insertion order.
func (r *PostgresRepository) ListCycle(ctx context.Context, cycle int64) ([]Summary, error) {
	query := `
		SELECT lat, lon, north, south, east, west, speed, direction, sample_count, fetched_at
		FROM wind_summaries
		WHERE cycle = $1
		ORDER BY seq
	`

	rows, err := r.pool.Query(ctx, query, cycle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(
			&s.Tile.Lat, &s.Tile.Lon,
			&s.Tile.North, &s.Tile.South, &s.Tile.East, &s.Tile.West,
			&s.Speed, &s.Direction, &s.SampleCount, &s.FetchedAt,
		); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(summaries) == 0 {
		return nil, ErrCycleNotFound
	}
	return summaries, nil
}

// LatestCycle returns the highest stored cycle number.
func (r *PostgresRepository) LatestCycle(ctx context.Context) (int64, error) {
	var latest *int64
	if err := r.pool.QueryRow(ctx, `SELECT MAX(cycle) FROM wind_summaries`).Scan(&latest); err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, ErrCycleNotFound
	}
	return *latest, nil
}

// DeleteBefore removes cycles older than the given one.
func (r *PostgresRepository) DeleteBefore(ctx context.Context, cycle int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM wind_summaries WHERE cycle < $1`, cycle)
	return err
}
