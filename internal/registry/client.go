// Package registry talks to the crates.io HTTP API: the paginated catalog
// listing and per-crate detail lookups.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/blackwell-systems/cratebot/internal/logger"
)

const (
	// DefaultBaseURL is the public crates.io API host.
	DefaultBaseURL = "https://crates.io"

	// DefaultTimeout bounds every request, including reading the body.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxTries is the number of attempts per request, first try included.
	DefaultMaxTries = 4

	// MaxResponseSize caps how much of a response body is read.
	MaxResponseSize = 16 * 1024 * 1024

	// UserAgent identifies the bot, as crates.io requires for API crawlers.
	UserAgent = "cratebot (https://github.com/blackwell-systems/cratebot)"
)

// Client is a rate-limited, retrying crates.io API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxTries   uint
	newBackOff func() backoff.BackOff
	log        logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API host (tests use httptest).
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = base }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the request rate shared by all calls. rate.Inf disables limiting.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(limit, burst) }
}

// WithRetry sets the attempt count and the backoff policy between attempts.
func WithRetry(maxTries uint, newBackOff func() backoff.BackOff) Option {
	return func(c *Client) {
		c.maxTries = maxTries
		if newBackOff != nil {
			c.newBackOff = newBackOff
		}
	}
}

// WithLogger sets the logger used for page progress and retries.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client with one request per second and exponential
// backoff, then applies opts.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		maxTries:   DefaultMaxTries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
		log: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListPage fetches one page of the catalog.
func (c *Client) ListPage(ctx context.Context, page, pageSize int) ([]Crate, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(pageSize))

	var resp cratesPage
	if err := c.getJSON(ctx, "/api/v1/crates?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Crates, nil
}

// GetCrate fetches the crate metadata and its owners.
func (c *Client) GetCrate(ctx context.Context, name string) (*Detail, error) {
	escaped := url.PathEscape(name)

	var crate crateResponse
	if err := c.getJSON(ctx, "/api/v1/crates/"+escaped, &crate); err != nil {
		return nil, fmt.Errorf("failed to fetch crate %s: %w", name, err)
	}

	var owners ownersResponse
	if err := c.getJSON(ctx, "/api/v1/crates/"+escaped+"/owners", &owners); err != nil {
		return nil, fmt.Errorf("failed to fetch owners of crate %s: %w", name, err)
	}

	return &Detail{Crate: crate.Crate, Owners: owners.Users}, nil
}

// getJSON performs a rate-limited GET with retries and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	target := c.baseURL + path

	body, err := backoff.Retry(ctx, func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		body, err := c.get(ctx, target)
		if err == nil {
			return body, nil
		}
		if !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		if after := retryAfter(err); after > 0 {
			return nil, backoff.RetryAfter(after)
		}
		return nil, err
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("registry request failed, retrying",
				logger.String("url", target),
				logger.Duration("backoff", next),
				logger.Error(err))
		}),
	)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", target, err)
	}
	return nil
}

// retryAfterError carries the server's Retry-After hint in seconds.
type retryAfterError struct {
	*HTTPError
	seconds int
}

func (e *retryAfterError) Unwrap() error { return e.HTTPError }

func retryAfter(err error) int {
	var ra *retryAfterError
	if errors.As(err, &ra) {
		return ra.seconds
	}
	return 0
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseSize))
		httpErr := &HTTPError{StatusCode: resp.StatusCode, URL: target, Message: resp.Status}
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				return nil, &retryAfterError{HTTPError: httpErr, seconds: secs}
			}
		}
		return nil, httpErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, backoff.Permanent(fmt.Errorf("response from %s exceeds %d bytes", target, MaxResponseSize))
	}

	return body, nil
}
