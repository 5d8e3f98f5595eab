// Package eismo fetches road weather reports from the eismoinfo.lt service.
package eismo

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/road-weather-etl/internal/adapter/httpclient"
	"github.com/couchcryptid/road-weather-etl/internal/domain"
)

// DefaultBaseURL is the public eismoinfo.lt host.
const DefaultBaseURL = "http://eismoinfo.lt"

const (
	currentPath       = "/weather-conditions-service/"
	retrospectivePath = "/weather-conditions-retrospective/"
)

// Getter performs a GET with retries; a nil response means total failure.
type Getter interface {
	Get(ctx context.Context, rawURL string, params url.Values, p httpclient.Policy) *httpclient.Response
}

// Client reads the current snapshot and per-station history.
type Client struct {
	http          Getter
	baseURL       string
	current       httpclient.Policy
	retrospective httpclient.Policy
	logger        *slog.Logger
}

// NewClient creates a source client. The two policies apply to the current
// snapshot and to retrospective requests respectively.
func NewClient(http Getter, baseURL string, current, retrospective httpclient.Policy, logger *slog.Logger) *Client {
	return &Client{
		http:          http,
		baseURL:       strings.TrimRight(baseURL, "/"),
		current:       current,
		retrospective: retrospective,
		logger:        logger,
	}
}

// CurrentSnapshot returns the latest report of every station. Failures are
// tagged with the request, decode or empty-result status.
func (c *Client) CurrentSnapshot(ctx context.Context) ([]domain.RawReport, error) {
	resp := c.http.Get(ctx, c.baseURL+currentPath, nil, c.current)
	if resp == nil {
		c.logger.Error("current snapshot request failed")
		return nil, domain.Failf(domain.StatusRequestFailure, "current snapshot: max retries exceeded")
	}
	raws, err := domain.DecodeReports(resp.Body)
	if err != nil {
		return nil, domain.Fail(domain.StatusDecodeFailure, err)
	}
	if len(raws) == 0 {
		return nil, domain.Failf(domain.StatusEmptyResult, "current snapshot: empty report array")
	}
	return raws, nil
}

// Retrospective returns up to n most recent reports of a station, newest first.
func (c *Client) Retrospective(ctx context.Context, stationID, n int) ([]domain.RawReport, error) {
	params := url.Values{
		"id":     {strconv.Itoa(stationID)},
		"number": {strconv.Itoa(n)},
	}
	resp := c.http.Get(ctx, c.baseURL+retrospectivePath, params, c.retrospective)
	if resp == nil {
		c.logger.Error("retrospective request failed", "station_id", stationID)
		return nil, domain.Failf(domain.StatusRequestFailure, "station %d: max retries exceeded", stationID)
	}
	raws, err := domain.DecodeReports(resp.Body)
	if err != nil {
		return nil, domain.Fail(domain.StatusDecodeFailure, err)
	}
	if len(raws) == 0 {
		return nil, domain.Failf(domain.StatusEmptyResult, "station %d: empty report array", stationID)
	}
	return raws, nil
}
