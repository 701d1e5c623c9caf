// Package fetch retrieves public profile pages with bounded retries,
// per-host rate limiting and an optional page cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/time/rate"

	"github.com/codeGROOVE-dev/arcadeboard/pkg/metrics"
	"github.com/codeGROOVE-dev/arcadeboard/pkg/profile"
)

// UserAgent is the browser User-Agent string sent with every request.
const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:146.0) Gecko/20100101 Firefox/146.0"

// maxBodyBytes bounds how much of a profile page is read.
const maxBodyBytes = 8 << 20

// ErrUnsupportedURL means the URL is not an absolute http(s) URL. It is never retried.
var ErrUnsupportedURL = errors.New("unsupported profile url")

// Fetchable reports whether rawURL is an absolute http or https URL with a host.
func Fetchable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// HTTPError represents a non-200 response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// Is maps well-known statuses onto the profile sentinel errors.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case profile.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case profile.ErrProfileNotFound:
		return e.StatusCode == http.StatusNotFound
	default:
		return false
	}
}

// Error is returned once every attempt for a URL has failed.
type Error struct {
	Err      error
	URL      string
	Attempts int
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client fetches profile pages.
type Client struct {
	httpClient *http.Client
	cache      Cacher
	limiter    *hostLimiter
	logger     *slog.Logger
	metrics    *metrics.Metrics
	policy     Policy
}

// Option configures a Client.
type Option func(*config)

type config struct {
	httpClient *http.Client
	cache      Cacher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	policy     Policy
	limit      rate.Limit
	burst      int
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithPageCache caches successful page bodies. Nil disables caching.
func WithPageCache(cache Cacher) Option {
	return func(c *config) { c.cache = cache }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMetrics records attempt outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithPolicy replaces the default retry policy.
func WithPolicy(p Policy) Option {
	return func(c *config) { c.policy = p }
}

// WithRateLimit bounds requests per host. rate.Inf disables limiting.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *config) {
		c.limit = limit
		c.burst = burst
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	cfg := &config{
		logger: slog.Default(),
		policy: DefaultPolicy(),
		limit:  rate.Every(100 * time.Millisecond),
		burst:  10,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		httpClient: cfg.httpClient,
		cache:      cfg.cache,
		limiter:    newHostLimiter(cfg.limit, cfg.burst),
		logger:     cfg.logger,
		metrics:    cfg.metrics,
		policy:     cfg.policy,
	}
}

// Fetch returns the body of rawURL. Failures after the retry budget is spent
// are returned as *Error.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if c.cache == nil {
		return c.fetchWithRetry(ctx, rawURL)
	}

	var fetched bool
	body, err := c.cache.GetSet(ctx, URLToKey(rawURL), func(ctx context.Context) ([]byte, error) {
		fetched = true
		return c.fetchWithRetry(ctx, rawURL)
	}, c.cache.TTL())
	if err != nil {
		return nil, err
	}
	if !fetched {
		c.logger.DebugContext(ctx, "page cache hit", "url", rawURL)
	}
	return body, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.policy.MaxElapsed)
	defer cancel()

	attempts := 0
	body, err := retry.DoWithData(
		func() ([]byte, error) {
			attempts++
			return c.do(ctx, rawURL)
		},
		// OnRetry receives the 0-based index of the failed attempt.
		c.policy.options(ctx, func(n uint, err error) {
			c.metrics.FetchRetry()
			c.logger.WarnContext(ctx, "retrying profile fetch",
				"attempt", n+1, "url", rawURL, "delay", c.policy.backoff()(n+1, err), "error", err)
		})...,
	)
	if err != nil {
		c.logger.ErrorContext(ctx, "profile fetch failed", "url", rawURL, "attempts", attempts, "error", err)
		return nil, &Error{URL: rawURL, Attempts: attempts, Err: err}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	if !Fetchable(rawURL) {
		return nil, retry.Unrecoverable(fmt.Errorf("%q: %w", rawURL, ErrUnsupportedURL))
	}
	if err := c.limiter.Wait(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.FetchAttempt("network_error")
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // intentional

	if resp.StatusCode != http.StatusOK {
		c.metrics.FetchAttempt("http_error")
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.metrics.FetchAttempt("network_error")
		return nil, err
	}
	c.metrics.FetchAttempt("ok")
	return body, nil
}

// IsHTTPStatus reports whether err wraps an *HTTPError with the given status.
func IsHTTPStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}
