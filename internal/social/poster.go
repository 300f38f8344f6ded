// Package social publishes announcements.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dghubble/oauth1"

	"github.com/blackwell-systems/cratebot/internal/config"
	"github.com/blackwell-systems/cratebot/internal/logger"
)

const (
	// MaxPostLength is the longest text accepted, as measured by Length.
	MaxPostLength = 280

	// DefaultTimeout bounds a single post request.
	DefaultTimeout = 30 * time.Second
)

// ErrPostTooLong is returned for text whose Length exceeds MaxPostLength.
var ErrPostTooLong = errors.New("post exceeds maximum length")

// Poster publishes one text post and returns the id the service assigned.
type Poster interface {
	Post(ctx context.Context, text string) (string, error)
}

// HTTPError is returned when the posting API rejects a request.
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Body)
}

// TwitterClient posts through the v2 tweets endpoint with OAuth 1.0a
// user-context signing.
type TwitterClient struct {
	baseURL  string
	creds    config.CredentialSource
	timeout  time.Duration
	maxTries uint
	log      logger.Logger
}

// NewTwitterClient creates a poster for baseURL. Credentials are fetched from
// creds on every post so rotated secrets take effect without a restart.
func NewTwitterClient(baseURL string, creds config.CredentialSource, log logger.Logger) *TwitterClient {
	if log == nil {
		log = logger.NewNop()
	}
	return &TwitterClient{
		baseURL:  baseURL,
		creds:    creds,
		timeout:  DefaultTimeout,
		maxTries: 3,
		log:      log,
	}
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Post publishes text. Server errors and rate limiting are retried with
// exponential backoff; client errors are returned immediately.
func (c *TwitterClient) Post(ctx context.Context, text string) (string, error) {
	if n := Length(text); n > MaxPostLength {
		return "", fmt.Errorf("%w: weighs %d, limit %d", ErrPostTooLong, n, MaxPostLength)
	}

	creds, err := c.creds.Credentials()
	if err != nil {
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}

	payload, err := json.Marshal(tweetRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("failed to encode post: %w", err)
	}

	cfg := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	token := oauth1.NewToken(creds.AccessTokenKey, creds.AccessTokenSecret)
	signCtx := context.WithValue(ctx, oauth1.HTTPClient, &http.Client{Timeout: c.timeout})
	httpClient := cfg.Client(signCtx, token)

	endpoint := c.baseURL + "/2/tweets"

	id, err := backoff.Retry(ctx, func() (string, error) {
		id, err := c.send(ctx, httpClient, endpoint, payload)
		if err == nil {
			return id, nil
		}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode != http.StatusTooManyRequests && httpErr.StatusCode < 500 {
			return "", backoff.Permanent(err)
		}
		return "", err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.Warn("post failed, retrying", logger.Duration("backoff", next), logger.Error(err))
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to publish post: %w", err)
	}

	return id, nil
}

func (c *TwitterClient) send(ctx context.Context, httpClient *http.Client, endpoint string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", &HTTPError{StatusCode: resp.StatusCode, URL: endpoint, Body: string(body)}
	}

	var out tweetResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return out.Data.ID, nil
}

// DryRun logs posts instead of publishing them.
type DryRun struct {
	Log logger.Logger
}

// Post logs text and returns an empty id.
func (d DryRun) Post(_ context.Context, text string) (string, error) {
	if n := Length(text); n > MaxPostLength {
		return "", fmt.Errorf("%w: weighs %d, limit %d", ErrPostTooLong, n, MaxPostLength)
	}
	log := d.Log
	if log == nil {
		log = logger.NewNop()
	}
	log.Info("dry run: not publishing post", logger.String("text", text))
	return "", nil
}
