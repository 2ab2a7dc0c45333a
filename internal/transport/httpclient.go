// Package transport provides the rate-limited, retrying HTTP client shared by
// the corpus fetchers and the REST like store.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/paper-timeline/internal/domain"
)

const (
	// maxErrorBody caps how much of a failed response body is kept in errors.
	maxErrorBody = 512

	// DefaultUserAgent is sent when the config names none.
	DefaultUserAgent = "Helixir-PaperTimeline/1.0"
)

// HTTPClientConfig configures the HTTP client.
type HTTPClientConfig struct {
	// Name identifies the remote in errors (e.g. "corpus", "postgrest").
	Name string

	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration

	// RateLimit is the maximum requests per second across all attempts.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the number of retries after the first attempt.
	// Negative disables retrying.
	MaxRetries int

	// RetryDelay is the first backoff step. Each retry doubles it up to
	// MaxRetryDelay unless the server sends Retry-After.
	RetryDelay time.Duration

	// MaxRetryDelay caps the backoff.
	MaxRetryDelay time.Duration

	UserAgent string

	// Headers are set on every request unless the request already carries them.
	Headers map[string]string
}

// HTTPClient wraps http.Client with rate limiting and retries on 429 and
// 5xx responses and on network errors. It is safe for concurrent use.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates an HTTPClient, filling zero config values with
// defaults.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 10
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = 3
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 30 * cfg.RetryDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &HTTPClient{
		client:      &http.Client{Timeout: cfg.Timeout},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// attempt is the outcome of one round trip.
type attempt struct {
	resp  *http.Response
	err   error
	retry bool
	delay time.Duration
}

// Do executes req with rate limiting and retries. Requests with a body must
// set GetBody to be resent on retry. A final 429 is a *domain.RateLimitError
// and a final 5xx matches domain.ErrServiceUnavailable.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.applyHeaders(req)
	ctx := req.Context()

	for n := 0; ; n++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		a := c.roundTrip(req, n)
		if !a.retry {
			return a.resp, a.err
		}
		if n >= c.config.MaxRetries {
			return nil, c.exhausted(a)
		}

		if err := c.waitForRetry(ctx, a.delay); err != nil {
			return nil, err
		}
		if err := resetRequestBody(req); err != nil {
			return nil, fmt.Errorf("cannot retry request: %w", err)
		}
	}
}

func (c *HTTPClient) applyHeaders(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	for k, v := range c.config.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
}

// roundTrip sends req once. Retryable responses are drained and closed; the
// status survives in a.resp for the exhausted error.
func (c *HTTPClient) roundTrip(req *http.Request, n int) attempt {
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return attempt{err: err}
		}
		return attempt{err: fmt.Errorf("request failed: %w", err), retry: true, delay: c.backoff(n)}
	}
	if !c.shouldRetry(resp.StatusCode) {
		return attempt{resp: resp}
	}

	delay, ok := retryAfter(resp)
	if !ok {
		delay = c.backoff(n)
	}
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return attempt{resp: resp, retry: true, delay: delay}
}

func (c *HTTPClient) exhausted(a attempt) error {
	if a.resp == nil {
		return a.err
	}
	if a.resp.StatusCode == http.StatusTooManyRequests {
		return domain.NewRateLimitError(c.config.Name, a.delay)
	}
	return domain.NewExternalAPIError(c.config.Name, a.resp.StatusCode,
		fmt.Sprintf("max retries exhausted after %d attempts", c.config.MaxRetries+1),
		domain.ErrServiceUnavailable)
}

// Get fetches url and returns the body of a 2xx response. Other statuses
// are reported as *domain.ExternalAPIError; 404 also matches domain.ErrNotFound.
func (c *HTTPClient) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return ReadBody(c.config.Name, resp)
}

// ReadBody reads a response body, converting non-2xx statuses into errors.
func ReadBody(source string, resp *http.Response) ([]byte, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var cause error
		if resp.StatusCode == http.StatusNotFound {
			cause = domain.ErrNotFound
		}
		return nil, domain.NewExternalAPIError(source, resp.StatusCode, strings.TrimSpace(string(snippet)), cause)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *HTTPClient) shouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500 && statusCode < 600
}

// backoff returns RetryDelay doubled n times, capped at MaxRetryDelay.
func (c *HTTPClient) backoff(n int) time.Duration {
	d := c.config.RetryDelay
	for i := 0; i < n && d < c.config.MaxRetryDelay; i++ {
		d *= 2
	}
	return min(d, c.config.MaxRetryDelay)
}

// retryAfter reads a positive Retry-After given as seconds or an HTTP date.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second, seconds > 0
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
	}
	return 0, false
}

func (c *HTTPClient) waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("get request body: %w", err)
	}
	req.Body = body
	return nil
}
