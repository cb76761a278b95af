package gate

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/windgrid/windgrid/internal/gate"

// Metrics holds the gate's OpenTelemetry instruments.
type Metrics struct {
	inFlight     metric.Int64UpDownCounter
	waitDuration metric.Float64Histogram
}

// NewMetrics creates gate instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	inFlight, err := meter.Int64UpDownCounter(
		"windgrid.gate.in_flight",
		metric.WithDescription("Number of tasks currently holding a gate slot"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	waitDuration, err := meter.Float64Histogram(
		"windgrid.gate.wait.duration",
		metric.WithDescription("Time spent waiting for a gate slot in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		inFlight:     inFlight,
		waitDuration: waitDuration,
	}, nil
}

func (m *Metrics) addInFlight(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.inFlight.Add(context.WithoutCancel(ctx), delta)
}

func (m *Metrics) recordWait(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.Record(ctx, d.Seconds())
}
