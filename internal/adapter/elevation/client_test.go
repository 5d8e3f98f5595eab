package elevation

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/road-weather-etl/internal/adapter/httpclient"
	"github.com/couchcryptid/road-weather-etl/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(serviceURL string, cacheSize int) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	getter := httpclient.New(5*time.Second, logger, metrics)
	return NewClient(getter, serviceURL, cacheSize, logger, metrics)
}

func TestFloor3(t *testing.T) {
	assert.InDelta(t, 54.687, Floor3(54.68759), 1e-9)
	assert.InDelta(t, 25.279, Floor3(25.2799), 1e-9)
	assert.InDelta(t, -1.235, Floor3(-1.2341), 1e-9)
}

func TestElevation_FloorsCoordinatesAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "54.687", r.URL.Query().Get("lat"))
		assert.Equal(t, "25.279", r.URL.Query().Get("lng"))
		_, _ = w.Write([]byte(`112.5`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 10)
	got := c.Elevation(context.Background(), 54.68759, 25.2799)
	require.NotNil(t, got)
	assert.InDelta(t, 112.5, *got, 1e-9)
}

func TestElevation_ObjectBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"elevation": 87}`))
	}))
	defer srv.Close()

	got := testClient(srv.URL, 10).Elevation(context.Background(), 55, 24)
	require.NotNil(t, got)
	assert.InDelta(t, 87.0, *got, 1e-9)
}

func TestElevation_CachesSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`100`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, 10)
	require.NotNil(t, c.Elevation(context.Background(), 54.6871, 25.2791))
	// Same floored coordinates.
	require.NotNil(t, c.Elevation(context.Background(), 54.6879, 25.2799))

	assert.Equal(t, int32(1), hits.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.ElevationCache.WithLabelValues("hit")), 0)
}

func TestElevation_FailureIsNilWithoutRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 10)
	assert.Nil(t, c.Elevation(context.Background(), 54.1, 25.1))
	assert.Equal(t, int32(1), hits.Load())
	assert.Zero(t, c.cache.len())
}

func TestElevation_BadBodyIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`"high"`))
	}))
	defer srv.Close()

	assert.Nil(t, testClient(srv.URL, 10).Elevation(context.Background(), 54.1, 25.1))
}

func TestElevation_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(srv.URL, 10)
	for i := 0; i < 8; i++ {
		assert.Nil(t, c.Elevation(context.Background(), 54.1+float64(i), 25.1))
	}
	assert.Equal(t, int32(5), hits.Load())
	assert.InDelta(t, 3, testutil.ToFloat64(c.metrics.ElevationRequests.WithLabelValues("open")), 0)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", 1)
	c.put("b", 2)
	_, _ = c.get("a")
	c.put("c", 3)

	_, ok := c.get("b")
	assert.False(t, ok)
	v, ok := c.get("a")
	assert.True(t, ok)
	assert.InDelta(t, 1.0, v, 0)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_Disabled(t *testing.T) {
	c := newLRUCache(0)
	c.put("a", 1)
	_, ok := c.get("a")
	assert.False(t, ok)
}
