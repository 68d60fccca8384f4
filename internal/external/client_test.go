package external

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"eduplatform/internal/types"
)

func noopSleep(time.Duration) {}

// upstream replays a script of status codes, repeating the last one once
// the script runs out, and records what each attempt carried.
type upstream struct {
	*httptest.Server

	mu      sync.Mutex
	script  []int
	headers []http.Header
	bodies  []string
}

func newUpstream(t *testing.T, script ...int) *upstream {
	t.Helper()
	u := &upstream{script: script}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		n := len(u.headers)
		u.headers = append(u.headers, r.Header.Clone())
		u.bodies = append(u.bodies, string(b))
		u.mu.Unlock()

		status := u.script[min(n, len(u.script)-1)]
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "120")
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.headers)
}

func quickClient(retries int, opts ...BaseClientOption) *BaseClient {
	opts = append([]BaseClientOption{WithSleepFunc(noopSleep)}, opts...)
	return NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-upstream",
		RetryPolicy{MaxRetries: retries, MinWait: time.Millisecond, MaxWait: 10 * time.Millisecond},
		"EduPlatform-Test/1.0",
		opts...,
	)
}

func get(t *testing.T, c *BaseClient, ctx context.Context, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Do(req)
	if resp != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	return resp, err
}

func TestDo_OutcomeByScript(t *testing.T) {
	tests := []struct {
		name      string
		script    []int
		retries   int
		wantCalls int
		wantCode  types.ErrorCode
		wantResp  int
	}{
		{"first try", []int{200}, 3, 1, "", 200},
		{"500 then ok", []int{500, 500, 200}, 3, 3, "", 200},
		{"503 then ok", []int{503, 503, 200}, 3, 3, "", 200},
		{"429 then ok", []int{429, 429, 200}, 3, 3, "", 200},
		{"client error returned untouched", []int{400}, 3, 1, "", 400},
		{"5xx exhausts retries", []int{502}, 2, 3, types.ErrCodeUpstreamUnavailable, 0},
		{"429 exhausts retries", []int{429}, 2, 3, types.ErrCodeUpstreamRateLimited, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUpstream(t, tt.script...)
			resp, err := get(t, quickClient(tt.retries), context.Background(), u.URL)

			if got := u.calls(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantCode != "" {
				if resp != nil {
					t.Error("expected no response once retries are exhausted")
				}
				if code := types.CodeOf(err); code != tt.wantCode {
					t.Errorf("code = %q, want %q (err %v)", code, tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.StatusCode != tt.wantResp {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantResp)
			}
		})
	}
}

func TestDo_Headers(t *testing.T) {
	u := newUpstream(t, http.StatusNoContent)
	client := quickClient(0)

	if _, err := get(t, client, types.WithRequestID(context.Background(), "req-abc"), u.URL); err != nil {
		t.Fatal(err)
	}
	if _, err := get(t, client, context.Background(), u.URL); err != nil {
		t.Fatal(err)
	}

	if got := u.headers[0].Get("X-Request-Id"); got != "req-abc" {
		t.Errorf("X-Request-Id = %q", got)
	}
	if got := u.headers[0].Get("User-Agent"); got != "EduPlatform-Test/1.0" {
		t.Errorf("User-Agent = %q", got)
	}
	if got := u.headers[1].Get("X-Request-Id"); got != "" {
		t.Errorf("request without an id sent X-Request-Id %q", got)
	}
}

func TestDo_ReplaysBodyOnRetry(t *testing.T) {
	u := newUpstream(t, http.StatusInternalServerError, http.StatusAccepted)
	payload := `{"personalizations":[]}`

	req, _ := http.NewRequest(http.MethodPost, u.URL, strings.NewReader(payload))
	resp, err := quickClient(2).Do(req)
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	resp.Body.Close()

	if len(u.bodies) != 2 {
		t.Fatalf("attempts = %d, want 2", len(u.bodies))
	}
	for i, b := range u.bodies {
		if b != payload {
			t.Errorf("attempt %d sent %q", i+1, b)
		}
	}
}

func TestDo_RetryAfterIsCappedByMaxWait(t *testing.T) {
	u := newUpstream(t, http.StatusTooManyRequests, http.StatusOK)

	var slept []time.Duration
	client := NewBaseClient(&http.Client{Timeout: time.Second}, "retry-after",
		RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: 2 * time.Second}, "",
		WithSleepFunc(func(d time.Duration) { slept = append(slept, d) }),
	)

	if _, err := get(t, client, context.Background(), u.URL); err != nil {
		t.Fatal(err)
	}
	if len(slept) != 1 || slept[0] != 2*time.Second {
		t.Errorf("waits = %v, want a single 2s", slept)
	}
}

func TestDo_OpenBreakerShortCircuits(t *testing.T) {
	u := newUpstream(t, http.StatusInternalServerError)
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "test-open",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures > 3 },
	})
	client := quickClient(0, WithBreaker(breaker))

	for range 4 {
		_, _ = get(t, client, context.Background(), u.URL)
	}
	tripped := u.calls()

	resp, err := get(t, client, context.Background(), u.URL)
	if resp != nil {
		t.Error("open breaker returned a response")
	}
	if code := types.CodeOf(err); code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("code = %q", code)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState in chain, got %v", err)
	}
	if u.calls() != tripped {
		t.Error("upstream reached while the breaker was open")
	}
}

func TestDo_ConnectionRefused(t *testing.T) {
	u := newUpstream(t, http.StatusOK)
	u.Close()

	_, err := get(t, quickClient(1), context.Background(), u.URL)
	if code := types.CodeOf(err); code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("code = %q (err %v)", code, err)
	}
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	u := newUpstream(t, http.StatusServiceUnavailable)
	client := NewBaseClient(&http.Client{Timeout: time.Second}, "cancel",
		RetryPolicy{MaxRetries: 3, MinWait: time.Hour, MaxWait: time.Hour}, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.URL, nil)
		_, err := client.Do(req)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled in chain, got %v", err)
		}
		if code := types.CodeOf(err); code != types.ErrCodeUpstreamUnavailable {
			t.Errorf("code = %q", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do kept waiting after cancellation")
	}
}

func TestBackoff_StaysInPolicyWindow(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, MinWait: 100 * time.Millisecond, MaxWait: 10 * time.Second}
	client := &BaseClient{retryPolicy: policy}

	for attempt := range 8 {
		if wait := client.backoff(attempt, nil); wait < policy.MinWait || wait > policy.MaxWait {
			t.Errorf("attempt %d: %v outside [%v, %v]", attempt, wait, policy.MinWait, policy.MaxWait)
		}
	}
}

func TestMapError_BreakerRejections(t *testing.T) {
	for _, cause := range []error{gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests} {
		appErr := (&BaseClient{}).mapError(0, cause)
		if appErr.Code != types.ErrCodeUpstreamUnavailable || !strings.Contains(appErr.Message, "circuit breaker") {
			t.Errorf("%v mapped to %s %q", cause, appErr.Code, appErr.Message)
		}
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	want := RetryPolicy{MaxRetries: 3, MinWait: 500 * time.Millisecond, MaxWait: 10 * time.Second}
	if got := DefaultRetryPolicy(); got != want {
		t.Errorf("DefaultRetryPolicy() = %+v", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	for _, tc := range []struct {
		in     string
		wantOK bool
	}{
		{"3", true}, {future, true}, {"soon", false}, {"", false}, {"0", false},
	} {
		d, ok := parseRetryAfter(tc.in)
		if ok != tc.wantOK || (ok && d <= 0) {
			t.Errorf("parseRetryAfter(%q) = %v, %v", tc.in, d, ok)
		}
	}
	if d, _ := parseRetryAfter("3"); d != 3*time.Second {
		t.Errorf("seconds form = %v", d)
	}
}
