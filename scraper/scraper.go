package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
)

// Authenticator supplies the Authorization header for a request.
// An empty header means the request is sent anonymously.
type Authenticator interface {
	AuthHeader(method, rawURL string) (string, error)
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Limiter   *RateLimiter
	Auth      Authenticator
	Metrics   *Metrics
	Logger    *slog.Logger
}

// Fetcher issues rate-limited JSON GET requests through a colly collector.
type Fetcher struct {
	collector *colly.Collector
	limiter   *RateLimiter
	auth      Authenticator
	userAgent string
	Metrics   *Metrics
	logger    *slog.Logger
}

// NewFetcher builds a synchronous collector bound to the API host.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	collector.SetRequestTimeout(timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put("status", r.StatusCode)
		r.Ctx.Put("body", r.Body)
	})

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if cfg.Limiter != nil {
		cfg.Limiter.SetMetrics(metrics)
	}

	return &Fetcher{
		collector: collector,
		limiter:   cfg.Limiter,
		auth:      cfg.Auth,
		userAgent: cfg.UserAgent,
		Metrics:   metrics,
		logger:    logger,
	}, nil
}

// WithTransport swaps the HTTP transport, mainly for tests.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// GetJSON fetches rawURL after acquiring a rate limiter token and decodes the body into out.
// endpoint labels the request in metrics and logs.
func (f *Fetcher) GetJSON(ctx context.Context, endpoint, rawURL string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.limiter.Acquire(ctx); err != nil {
		return err
	}

	hdr := http.Header{}
	hdr.Set("Accept", "application/vnd.discogs.v2.discogs+json")
	// colly only applies its UserAgent when no header is passed.
	if f.userAgent != "" {
		hdr.Set("User-Agent", f.userAgent)
	}
	if f.auth != nil {
		value, err := f.auth.AuthHeader(http.MethodGet, rawURL)
		if err != nil {
			return fmt.Errorf("authorize request: %w", err)
		}
		if value != "" {
			hdr.Set("Authorization", value)
		}
	}

	reqCtx := colly.NewContext()
	f.Metrics.IncRequest(endpoint)
	start := time.Now()
	reqErr := f.collector.Request(http.MethodGet, rawURL, nil, reqCtx, hdr)
	f.Metrics.ObserveDuration(time.Since(start))

	status, _ := reqCtx.GetAny("status").(int)
	body, _ := reqCtx.GetAny("body").([]byte)

	if status >= http.StatusBadRequest {
		classified := classifyError(&HTTPError{StatusCode: status, Body: string(body), URL: rawURL}, status, body)
		f.record(endpoint, rawURL, classified)
		return classified
	}
	if reqErr != nil {
		classified := classifyError(reqErr, 0, nil)
		f.record(endpoint, rawURL, classified)
		return classified
	}
	if status == 0 {
		err := fmt.Errorf("no response from %s", rawURL)
		f.record(endpoint, rawURL, err)
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		f.Metrics.IncError("decode")
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (f *Fetcher) record(endpoint, rawURL string, err error) {
	category := errorTypeLabel(err)
	f.Metrics.IncError(category)
	f.logger.Debug("request error",
		slog.String("endpoint", endpoint),
		slog.String("url", rawURL),
		slog.String("category", category),
		slog.Any("error", err),
	)
}
