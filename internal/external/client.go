// Package external wraps the third-party services the platform talks to.
// Outbound HTTP goes through BaseClient, which adds circuit breaking,
// retries with backoff, request-id propagation and error mapping; the AWS
// SDK clients (SES) carry their own retryer and only get error mapping here.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"eduplatform/internal/types"
)

// RetryPolicy bounds retries of 429 and 5xx responses.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, MinWait: 500 * time.Millisecond, MaxWait: 10 * time.Second}
}

// BaseClient is the shared HTTP path of the provider clients. A warning run
// sends hundreds of messages in a row, so a provider outage must trip the
// breaker quickly instead of retrying every message.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	wait        func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

type BaseClientOption func(*BaseClient)

// WithSleepFunc replaces the wait between retries. Tests pass a no-op; the
// replacement does not observe context cancellation.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.wait = func(_ context.Context, d time.Duration) error {
			fn(d)
			return nil
		}
	}
}

func WithLogger(logger *slog.Logger) BaseClientOption {
	return func(c *BaseClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBreaker substitutes a caller-built breaker for the default one.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) BaseClientOption {
	return func(c *BaseClient) { c.breaker = cb }
}

// NewBaseClient builds a client whose breaker opens after more than five
// consecutive failures and half-opens after 30 seconds.
func NewBaseClient(httpClient *http.Client, breakerName string, policy RetryPolicy, userAgent string, opts ...BaseClientOption) *BaseClient {
	c := &BaseClient{
		client:      httpClient,
		retryPolicy: policy,
		userAgent:   userAgent,
		wait:        waitCtx,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = gobreaker.NewCircuitBreaker[*http.Response](c.breakerSettings(breakerName))
	}
	return c
}

func (c *BaseClient) breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
}

func waitCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Do sends req through the breaker, retrying 429 and 5xx responses.
//
// Any other response is returned as-is for the caller to read and close.
// When retries run out, the breaker is open or ctx ends during a wait, Do
// returns a *types.AppError with an upstream_* code and no response.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if id := types.GetRequestID(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Buffered once so every attempt can replay it.
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to buffer request body", err)
		}
	}

	var (
		status  int
		lastErr error
	)
	for attempt := 0; ; attempt++ {
		resp, err := c.attempt(req, body)
		if err == nil {
			return resp, nil
		}
		lastErr, status = err, 0

		if resp != nil {
			status = resp.StatusCode
			wait := c.backoff(attempt, resp)
			resp.Body.Close()
			if attempt >= c.retryPolicy.MaxRetries {
				break
			}
			if werr := c.retryAfter(ctx, req, attempt, wait, err); werr != nil {
				return nil, c.mapError(status, werr)
			}
			continue
		}
		if isBreakerRejection(err) || attempt >= c.retryPolicy.MaxRetries {
			break
		}
		if werr := c.retryAfter(ctx, req, attempt, c.backoff(attempt, nil), err); werr != nil {
			return nil, c.mapError(0, werr)
		}
	}
	return nil, c.mapError(status, lastErr)
}

// attempt runs one request through the breaker. A retryable status comes
// back as both a response and an error.
func (c *BaseClient) attempt(req *http.Request, body []byte) (*http.Response, error) {
	if body != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.ContentLength = int64(len(body))
	}
	return c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if retryableStatus(resp.StatusCode) {
			return resp, fmt.Errorf("upstream returned %d", resp.StatusCode)
		}
		return resp, nil
	})
}

func (c *BaseClient) retryAfter(ctx context.Context, req *http.Request, attempt int, wait time.Duration, cause error) error {
	c.logger.DebugContext(ctx, "retrying upstream request",
		"url", req.URL.Redacted(),
		"attempt", attempt+1,
		"wait_ms", wait.Milliseconds(),
		"error", cause,
	)
	return c.wait(ctx, wait)
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// backoff honours Retry-After (seconds or HTTP-date) and otherwise draws
// from [MinWait, MinWait*2^attempt], always capped at MaxWait.
func (c *BaseClient) backoff(attempt int, resp *http.Response) time.Duration {
	p := c.retryPolicy
	if resp != nil {
		if d, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return min(max(d, p.MinWait), p.MaxWait)
		}
	}

	ceiling := p.MinWait
	for i := 0; i < attempt && ceiling < p.MaxWait; i++ {
		ceiling *= 2
	}
	ceiling = min(ceiling, p.MaxWait)
	if ceiling <= p.MinWait {
		return p.MinWait
	}
	return p.MinWait + rand.N(ceiling-p.MinWait)
}

func parseRetryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		return time.Until(at), true
	}
	return 0, false
}

// mapError turns the final failure into an upstream AppError. status is 0
// when no response was received.
func (c *BaseClient) mapError(status int, err error) *types.AppError {
	switch {
	case isBreakerRejection(err):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "circuit breaker is open; upstream service unavailable", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream request abandoned", err)
	case status == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
	case status >= 500:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("upstream returned %d after retries", status), err)
	default:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream request failed", err)
	}
}
