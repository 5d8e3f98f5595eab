// Package elevation looks up terrain height for station coordinates.
package elevation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/road-weather-etl/internal/adapter/httpclient"
	"github.com/couchcryptid/road-weather-etl/internal/observability"
	"github.com/sony/gobreaker"
)

// DefaultURL is the public elevation service.
const DefaultURL = "https://elevation.gismeteo.dev/"

// noRetry issues exactly one request with no wait afterwards.
var noRetry = httpclient.Policy{MaxRetries: 0, BackoffFactor: 0, Logging: false}

var errLookupFailed = errors.New("elevation request failed")

// Getter performs a GET with retries; a nil response means total failure.
type Getter interface {
	Get(ctx context.Context, rawURL string, params url.Values, p httpclient.Policy) *httpclient.Response
}

// Client resolves elevations through a circuit breaker and an LRU cache.
type Client struct {
	http    Getter
	url     string
	breaker *gobreaker.CircuitBreaker
	cache   *lruCache
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewClient creates an elevation client. A cacheSize of zero disables caching.
func NewClient(http Getter, serviceURL string, cacheSize int, logger *slog.Logger, metrics *observability.Metrics) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "elevation",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Client{
		http:    http,
		url:     serviceURL,
		breaker: cb,
		cache:   newLRUCache(cacheSize),
		logger:  logger,
		metrics: metrics,
	}
}

// Floor3 truncates a coordinate toward negative infinity at 3 decimal digits.
func Floor3(v float64) float64 {
	return math.Floor(v*1000) / 1000
}

// Elevation returns the height at the given coordinates, or nil when the
// lookup fails. Coordinates are floored to 3 decimals and the request is
// never retried.
func (c *Client) Elevation(ctx context.Context, lat, lng float64) *float64 {
	lat, lng = Floor3(lat), Floor3(lng)
	latS := strconv.FormatFloat(lat, 'f', 3, 64)
	lngS := strconv.FormatFloat(lng, 'f', 3, 64)
	key := latS + "," + lngS

	if v, ok := c.cache.get(key); ok {
		c.metrics.ElevationCache.WithLabelValues("hit").Inc()
		return &v
	}
	c.metrics.ElevationCache.WithLabelValues("miss").Inc()

	out, err := c.breaker.Execute(func() (any, error) {
		resp := c.http.Get(ctx, c.url, url.Values{"lat": {latS}, "lng": {lngS}}, noRetry)
		if resp == nil {
			return nil, errLookupFailed
		}
		return decodeElevation(resp)
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "open"
		}
		c.metrics.ElevationRequests.WithLabelValues(outcome).Inc()
		c.logger.Warn("elevation lookup failed", "lat", latS, "lng", lngS, "error", err)
		return nil
	}

	c.metrics.ElevationRequests.WithLabelValues("success").Inc()
	v := out.(float64)
	c.cache.put(key, v)
	return &v
}

// decodeElevation accepts a bare JSON number or an object with an
// "elevation" member.
func decodeElevation(resp *httpclient.Response) (float64, error) {
	var body any
	if err := resp.DecodeJSON(&body); err != nil {
		return 0, err
	}
	if obj, ok := body.(map[string]any); ok {
		body = obj["elevation"]
	}
	n, ok := body.(json.Number)
	if !ok {
		return 0, fmt.Errorf("decode elevation: unexpected value %v", body)
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("decode elevation: %w", err)
	}
	return f, nil
}
