package balloon_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windgrid/windgrid/internal/balloon"
	"github.com/windgrid/windgrid/internal/provider/resilience"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newClient(url string, hours int) *balloon.Client {
	return balloon.NewClient(balloon.ClientConfig{
		BaseURL:    url,
		Hours:      hours,
		HTTPClient: resilience.NewClient(resilience.DefaultClientConfig("test")),
		Now:        func() time.Time { return fixedNow },
		Logger:     zerolog.Nop(),
	})
}

func TestClient_FetchHistory(t *testing.T) {
	snapshots := map[string]string{
		"/00.json": `[[10.5, 20.5, 15000], [-5, 179.5, 12000], [1, 2, 3]]`,
		"/01.json": `not json at all`,
		"/03.json": `[[11, 21, 15100], [null, 178, 12100], [1, 2], "junk"]`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := snapshots[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	histories, err := newClient(server.URL, 4).FetchHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, histories, 3)

	first := histories[0]
	assert.Equal(t, "balloon_0", first.ID)
	require.Len(t, first.Samples, 2)
	assert.Equal(t, 0, first.Samples[0].Hour)
	assert.Equal(t, fixedNow, first.Samples[0].Timestamp)
	assert.Equal(t, 3, first.Samples[1].Hour)
	assert.Equal(t, fixedNow.Add(-3*time.Hour), first.Samples[1].Timestamp)
	assert.Equal(t, 15100.0, first.Samples[1].Alt)

	// Null latitude in hour 3 is dropped.
	assert.Equal(t, "balloon_1", histories[1].ID)
	assert.Len(t, histories[1].Samples, 1)

	// Short row in hour 3 is dropped.
	assert.Equal(t, "balloon_2", histories[2].ID)
	assert.Len(t, histories[2].Samples, 1)
}

func TestClient_FetchHistory_AllMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newClient(server.URL, 3).FetchHistory(context.Background())
	assert.ErrorIs(t, err, balloon.ErrNoSnapshots)
}

func TestClient_FetchHistory_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newClient(server.URL, 3).FetchHistory(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHistory_LatestAndValid(t *testing.T) {
	h := balloon.History{Samples: []balloon.Sample{
		{Lat: 95, Lon: 0, Hour: 0},
		{Lat: 10, Lon: 20, Hour: 1},
		{Lat: 11, Lon: 200, Hour: 2},
		{Lat: 12, Lon: 22, Hour: 3},
	}}

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, 1, latest.Hour)
	assert.Len(t, h.ValidSamples(), 2)

	_, ok = balloon.History{}.Latest()
	assert.False(t, ok)
}
