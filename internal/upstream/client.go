// Package upstream is the HTTP client for the remote gifts API. Every
// outbound call goes through one code path that applies rate limiting,
// a circuit breaker and bounded retries, so the rest of the system
// never talks to the network directly.
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

const (
	// SecretHeader carries the shared secret on every request. The
	// remote API rejects calls without it.
	SecretHeader = "X-Internal-Secret"

	defaultTimeout = 15 * time.Second
	defaultRetries = 3

	retryBase = 500 * time.Millisecond
	retryMax  = 8 * time.Second
)

// ErrUpstreamStatus wraps a non-2xx response that is not worth retrying.
var ErrUpstreamStatus = errors.New("upstream status")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUpstreamStatus }

// retryable reports whether the status code indicates a transient
// condition. Client errors are final; the same request will fail the
// same way again.
func (e *StatusError) retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Client talks to the remote gifts API.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	retries int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit bounds outbound request rate.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithRetries sets the number of retry attempts after the first try.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// New creates a Client for the given base URL. The secret may be empty
// when the remote deployment does not require one.
func New(baseURL, secret string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("upstream: empty base URL")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		retries: defaultRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Limit(10), 20)
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		IsSuccessful: func(err error) bool {
			// 4xx means the remote is healthy and rejected this
			// particular request; only server-side failures count
			// against the breaker.
			var se *StatusError
			if errors.As(err, &se) {
				return !se.retryable()
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[upstream] breaker %s: %s -> %s", name, from, to)
		},
	})
	return c, nil
}

// do performs one HTTP request through the limiter and breaker, retrying
// transient failures with exponential backoff. It returns the response
// body on any 2xx status.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := retryBase << uint(attempt-1)
			if delay > retryMax {
				delay = retryMax
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			log.Printf("[upstream] retry %d for %s %s: %v", attempt, method, path, lastErr)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		out, err := c.breaker.Execute(func() ([]byte, error) {
			return c.roundTrip(ctx, method, path, query, body)
		})
		if err == nil {
			return out, nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) && !se.retryable() {
			return nil, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("upstream %s %s: %w", method, path, lastErr)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set(SecretHeader, c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(data), 256)}
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
