package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const maxPageBytes = 8 << 20

// Fetcher downloads pages with a per-host rate limit and retries on 429/503.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	perHost    rate.Limit
	maxRetries int
	backoff    time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// FetcherOptions configures a Fetcher; zero values fall back to defaults.
type FetcherOptions struct {
	Client      *http.Client
	UserAgent   string
	RatePerHost float64
	MaxRetries  int
	Backoff     time.Duration
}

// NewFetcher builds a Fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 20 * time.Second}
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "AffineNews/1.0"
	}
	limit := rate.Inf
	if opts.RatePerHost > 0 {
		limit = rate.Limit(opts.RatePerHost)
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	return &Fetcher{
		client:     opts.Client,
		userAgent:  opts.UserAgent,
		perHost:    limit,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		limiters:   map[string]*rate.Limiter{},
	}
}

// Page is a downloaded document.
type Page struct {
	URL         *url.URL
	Body        []byte
	ContentType string
}

// Get downloads rawURL, following redirects, and returns the final URL and body.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (Page, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("invalid url %s: %w", rawURL, err)
	}

	for attempt := 0; ; attempt++ {
		if err := f.limiter(target.Host).Wait(ctx); err != nil {
			return Page{}, fmt.Errorf("rate limit wait: %w", err)
		}

		page, retryAfter, err := f.do(ctx, target)
		if err == nil {
			return page, nil
		}
		if retryAfter < 0 || attempt >= f.maxRetries {
			return Page{}, err
		}

		wait := retryAfter
		if wait == 0 {
			wait = f.backoff << attempt
		}
		select {
		case <-ctx.Done():
			return Page{}, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// do performs one request. retryAfter is negative when the error is not retryable.
func (f *Fetcher) do(ctx context.Context, target *url.URL) (Page, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Page{}, -1, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, -1, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return Page{}, parseRetryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("%s returned %s", target.Host, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return Page{}, -1, fmt.Errorf("%s returned %s", target.Host, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Page{}, -1, fmt.Errorf("read body: %w", err)
	}

	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	return Page{URL: final, Body: body, ContentType: resp.Header.Get("Content-Type")}, 0, nil
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(f.perHost, 1)
		f.limiters[host] = l
	}
	return l
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
