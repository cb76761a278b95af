package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/windgrid/windgrid/internal/api/middleware"
)

func newTestMetrics(t *testing.T) (*middleware.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := middleware.NewMetricsFromMeter(provider.Meter("test"))
	require.NoError(t, err)
	return metrics, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	t.Fatalf("metric %s not recorded", name)
	return nil
}

func TestNewMetrics(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)
	assert.NotNil(t, metrics)
}

func TestMetrics_Middleware_RecordsRoute(t *testing.T) {
	metrics, reader := newTestMetrics(t)

	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Get("/v1/wind/{format}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	for range 3 {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/wind/geojson", http.NoBody))
	}

	sum, ok := collect(t, reader, "http.server.request.total").(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)

	dp := sum.DataPoints[0]
	assert.Equal(t, int64(3), dp.Value)
	route, _ := dp.Attributes.Value(attribute.Key("http.route"))
	assert.Equal(t, "/v1/wind/{format}", route.AsString())
	status, _ := dp.Attributes.Value(attribute.Key("http.response.status_code"))
	assert.Equal(t, "200", status.AsString())
	assert.False(t, dp.Attributes.HasValue(attribute.Key("error")))
}

func TestMetrics_Middleware_MarksErrors(t *testing.T) {
	metrics, reader := newTestMetrics(t)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/refresh", http.NoBody))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	sum, ok := collect(t, reader, "http.server.request.total").(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.True(t, sum.DataPoints[0].Attributes.HasValue(attribute.Key("error")))
}

func TestMetrics_StreamCounters(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.StreamOpened(ctx)
	metrics.StreamOpened(ctx)
	metrics.StreamSent(ctx)
	metrics.StreamClosed(ctx)

	clients, ok := collect(t, reader, "windgrid.stream.clients").(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), clients.DataPoints[0].Value)

	sent, ok := collect(t, reader, "windgrid.stream.messages").(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), sent.DataPoints[0].Value)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var metrics *middleware.Metrics

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotPanics(t, func() {
		metrics.StreamOpened(context.Background())
		metrics.StreamSent(context.Background())
		metrics.StreamClosed(context.Background())
	})
}
