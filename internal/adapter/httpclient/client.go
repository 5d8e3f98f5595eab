// Package httpclient issues GET requests with bounded exponential backoff.
// Total failure is reported as a nil *Response rather than an error so that
// callers must check for it explicitly.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/road-weather-etl/internal/observability"
	"github.com/jonboulle/clockwork"
)

// maxBodySize bounds how much of a response body is buffered.
const maxBodySize = 32 << 20

// Policy controls retries for one call.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BackoffFactor scales the wait after failed attempt i to BackoffFactor * 2^i.
	BackoffFactor time.Duration
	// Logging enables per-attempt and terminal failure logs.
	Logging bool
}

// Attempts returns the total number of requests the policy allows.
func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Backoff returns the wait that follows failed attempt i (0-based).
func (p Policy) Backoff(attempt int) time.Duration {
	return p.BackoffFactor * time.Duration(1<<uint(attempt))
}

// Response is a successful (2xx) response with its body fully read.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// DecodeJSON decodes the body into v, keeping numbers as json.Number when v
// holds interface values.
func (r *Response) DecodeJSON(v any) error {
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode response from %s: %w", r.URL, err)
	}
	return nil
}

// Client executes GET requests with retries.
type Client struct {
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Client whose individual requests time out after timeout.
func New(timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		clock:      clockwork.NewRealClock(),
		logger:     logger,
		metrics:    metrics,
	}
}

// WithClock returns a copy of the client that waits on clock between attempts.
func (c *Client) WithClock(clock clockwork.Clock) *Client {
	cp := *c
	cp.clock = clock
	return &cp
}

// Get requests rawURL with params merged into its query. Non-2xx statuses
// and transport errors are retried; every failed attempt, the last one
// included, is followed by its backoff wait. It returns nil once the
// attempt budget is spent or ctx is done.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values, p Policy) *Response {
	target, err := buildURL(rawURL, params)
	if err != nil {
		c.logger.Error("invalid request url", "url", rawURL, "error", err)
		return nil
	}

	for attempt := 0; attempt < p.Attempts(); attempt++ {
		resp, err := c.do(ctx, target)
		if err == nil {
			c.metrics.HTTPAttempts.WithLabelValues("success").Inc()
			if p.Logging {
				c.logger.Debug("http request succeeded", "url", target, "attempt", attempt+1, "status", resp.StatusCode)
			}
			return resp
		}
		c.metrics.HTTPAttempts.WithLabelValues("error").Inc()
		if ctx.Err() != nil {
			return nil
		}

		wait := p.Backoff(attempt)
		if p.Logging {
			c.logger.Warn("http request failed", "url", target, "attempt", attempt+1, "error", err, "wait", wait)
		}
		if !c.sleep(ctx, wait) {
			return nil
		}
	}

	if p.Logging {
		c.logger.Error("max retries exceeded", "url", target, "attempts", p.Attempts())
	}
	return nil
}

func (c *Client) do(ctx context.Context, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet(body))
	}
	return &Response{URL: target, StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(d):
		return true
	}
}

func buildURL(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if len(params) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
