package worker

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/windgrid/windgrid/internal/worker"

// Metrics holds the scheduler's OpenTelemetry instruments. A nil *Metrics records nothing.
type Metrics struct {
	batches  metric.Int64Counter
	tiles    metric.Int64Counter
	cycles   metric.Int64Counter
	coverage metric.Int64Gauge
}

// NewMetrics creates scheduler instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	batches, err := meter.Int64Counter(
		"windgrid.scheduler.batches",
		metric.WithDescription("Number of batches run, by outcome"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, err
	}

	tiles, err := meter.Int64Counter(
		"windgrid.scheduler.tile_fetches",
		metric.WithDescription("Number of tile fetch attempts, by phase and outcome"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	cycles, err := meter.Int64Counter(
		"windgrid.scheduler.cycles",
		metric.WithDescription("Number of refresh cycles started"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	coverage, err := meter.Int64Gauge(
		"windgrid.scheduler.covered_tiles",
		metric.WithDescription("Tiles covered in the current cycle"),
		metric.WithUnit("{tile}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		batches:  batches,
		tiles:    tiles,
		cycles:   cycles,
		coverage: coverage,
	}, nil
}

func outcome(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("outcome", "error")
	}
	return attribute.String("outcome", "ok")
}

func (m *Metrics) recordTile(ctx context.Context, phase Phase, err error) {
	if m == nil {
		return
	}
	m.tiles.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("phase", string(phase)),
		outcome(err),
	))
}

func (m *Metrics) recordBatch(ctx context.Context, err error, covered int) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	m.batches.Add(ctx, 1, metric.WithAttributes(outcome(err)))
	m.coverage.Record(ctx, int64(covered))
}

func (m *Metrics) recordCycle(ctx context.Context) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	m.cycles.Add(ctx, 1)
	m.coverage.Record(ctx, 0)
}
