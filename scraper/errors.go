package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// hardLimitMarker is the body fragment Discogs returns past its page ceiling.
const hardLimitMarker = "pagination above 100 disabled"

// HTTPError carries the status and body of a failed upstream response.
type HTTPError struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Sprintf("http status %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("http status %d for %s: %s", e.StatusCode, e.URL, body)
}

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates a forbidden response (HTTP 403) that is not the page ceiling.
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a missing resource (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string {
	return fmt.Errorf("not_found: %w", e.Err).Error()
}

func (e ErrNotFound) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrHardLimit indicates the marketplace refused to paginate further.
// It is never retried.
type ErrHardLimit struct {
	Err error
}

func (e ErrHardLimit) Error() string {
	return fmt.Errorf("hard_limit: %w", e.Err).Error()
}

func (e ErrHardLimit) Unwrap() error {
	return e.Err
}

// IsHardLimit reports whether err is the provider's pagination ceiling.
func IsHardLimit(err error) bool {
	var hard ErrHardLimit
	return errors.As(err, &hard)
}

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool {
	var notFound ErrNotFound
	return errors.As(err, &notFound)
}

// IsRetryable reports whether err is transient rate limiting (403 or 429).
func IsRetryable(err error) bool {
	if err == nil || IsHardLimit(err) {
		return false
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return true
	}
	var forbidden ErrForbidden
	return errors.As(err, &forbidden)
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var hard ErrHardLimit
	if errors.As(err, &hard) {
		return "hard_limit"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return "http"
	}
	return "other"
}

func classifyError(err error, statusCode int, body []byte) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode >= http.StatusBadRequest {
		wrapped := err
		if wrapped == nil {
			wrapped = &HTTPError{StatusCode: statusCode, Body: string(body)}
		}
		switch statusCode {
		case http.StatusForbidden:
			if strings.Contains(strings.ToLower(string(body)), hardLimitMarker) {
				return ErrHardLimit{Err: wrapped}
			}
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		return wrapped
	}

	return err
}
