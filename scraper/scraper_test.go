package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testBaseURL = "http://api.discogs.test"

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		body       string
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, body: `{"message": "You are making requests too quickly."}`, expected: "forbidden"},
		{name: "hard limit", err: nil, statusCode: http.StatusForbidden, body: `{"message": "Pagination above 100 disabled for inventories besides your own"}`, expected: "hard_limit"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusBadGateway, expected: "http"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode, []byte(tt.body))); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	hard := classifyError(nil, http.StatusForbidden, []byte("pagination above 100 disabled"))
	if IsRetryable(hard) {
		t.Fatalf("hard limit must not be retryable")
	}
	if !IsHardLimit(hard) {
		t.Fatalf("expected hard limit classification")
	}
	if !IsRetryable(classifyError(nil, http.StatusForbidden, nil)) {
		t.Fatalf("plain 403 should be retryable")
	}
	if !IsRetryable(classifyError(nil, http.StatusTooManyRequests, nil)) {
		t.Fatalf("429 should be retryable")
	}
	if IsRetryable(classifyError(nil, http.StatusNotFound, nil)) {
		t.Fatalf("404 should not be retryable")
	}
	if IsRetryable(fmt.Errorf("wrapped: %w", errors.New("boom"))) {
		t.Fatalf("generic errors should not be retryable")
	}
}

func newTestFetcher(t *testing.T) (*Fetcher, *httpmock.MockTransport) {
	t.Helper()
	f, err := NewFetcher(FetcherConfig{
		BaseURL:   testBaseURL,
		UserAgent: "sellerwatch-test",
		Timeout:   time.Second,
		Limiter:   NewRateLimiter(100, 100),
		Metrics:   NewMetrics(),
	})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	f.WithTransport(transport)
	return f, transport
}

type staticAuth string

func (s staticAuth) AuthHeader(string, string) (string, error) { return string(s), nil }

func TestFetcherGetJSON(t *testing.T) {
	f, transport := newTestFetcher(t)
	f.auth = staticAuth("Discogs token=abc")

	transport.RegisterResponder("GET", testBaseURL+"/users/vinylshop",
		func(req *http.Request) (*http.Response, error) {
			if got := req.Header.Get("Authorization"); got != "Discogs token=abc" {
				return httpmock.NewStringResponse(http.StatusUnauthorized, "missing auth"), nil
			}
			if got := req.Header.Get("User-Agent"); got != "sellerwatch-test" {
				return httpmock.NewStringResponse(http.StatusBadRequest, "missing user agent"), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"username": "VinylShop"})
		})

	var out struct {
		Username string `json:"username"`
	}
	if err := f.GetJSON(context.Background(), "user", testBaseURL+"/users/vinylshop", &out); err != nil {
		t.Fatalf("get json: %v", err)
	}
	if out.Username != "VinylShop" {
		t.Fatalf("username = %q, want VinylShop", out.Username)
	}
	if got := testutil.ToFloat64(f.Metrics.RequestsTotal.WithLabelValues("user")); got != 1 {
		t.Fatalf("requests metric = %v, want 1", got)
	}
}

func TestFetcherHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		body     string
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusForbidden, body: `{"message": "Pagination above 100 disabled for inventories besides your own"}`, expected: "hard_limit"},
		{status: http.StatusNotFound, expected: "not_found"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d_%s", tt.status, tt.expected), func(t *testing.T) {
			f, transport := newTestFetcher(t)
			transport.RegisterResponder("GET", testBaseURL+"/marketplace/listings/1",
				httpmock.NewStringResponder(tt.status, tt.body))

			err := f.GetJSON(context.Background(), "listing", testBaseURL+"/marketplace/listings/1", &struct{}{})
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if got := errorTypeLabel(err); got != tt.expected {
				t.Fatalf("label = %q, want %q (err=%v)", got, tt.expected, err)
			}
			var httpErr *HTTPError
			if !errors.As(err, &httpErr) || httpErr.StatusCode != tt.status {
				t.Fatalf("expected wrapped HTTPError with status %d, got %v", tt.status, err)
			}
			if got := testutil.ToFloat64(f.Metrics.ErrorsTotal.WithLabelValues(tt.expected)); got != 1 {
				t.Fatalf("errors metric = %v, want 1", got)
			}
		})
	}
}

func TestFetcherRevisitsSameURL(t *testing.T) {
	f, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", testBaseURL+"/releases/5",
		httpmock.NewStringResponder(http.StatusOK, `{"id": 5}`))

	for i := 0; i < 3; i++ {
		if err := f.GetJSON(context.Background(), "release", testBaseURL+"/releases/5", nil); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if got := transport.GetTotalCallCount(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestFetcherHonoursCancelledContext(t *testing.T) {
	f, transport := newTestFetcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.GetJSON(ctx, "release", testBaseURL+"/releases/5", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := transport.GetTotalCallCount(); got != 0 {
		t.Fatalf("calls = %d, want 0", got)
	}
}
