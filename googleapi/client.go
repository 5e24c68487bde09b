package googleapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultPlacesBaseURL    = "https://maps.googleapis.com/maps/api/place"
	DefaultPageSpeedBaseURL = "https://www.googleapis.com/pagespeedonline/v5"
)

// Options configures a Client. Zero values fall back to sensible defaults.
type Options struct {
	PlacesAPIKey     string
	PageSpeedAPIKey  string
	PlacesBaseURL    string
	PageSpeedBaseURL string
	Timeout          time.Duration
	MaxRetries       int
	RequestsPerSec   float64
	CacheTTL         time.Duration
	HTTPClient       *http.Client
	Logger           logrus.FieldLogger

	// PageTokenDelay is how long to wait before using a next_page_token.
	// Zero means 2s, negative means no wait.
	PageTokenDelay time.Duration
	// MinBackoff is the first retry delay.
	MinBackoff time.Duration
}

// Client talks to the Places Web Service and PageSpeed Insights.
// It is safe for concurrent use.
type Client struct {
	placesKey      string
	pageSpeedKey   string
	placesBase     string
	pageSpeedBase  string
	maxRetries     int
	minBackoff     time.Duration
	pageTokenDelay time.Duration

	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *responseCache
	log        logrus.FieldLogger
}

func NewClient(opts Options) *Client {
	c := &Client{
		placesKey:      opts.PlacesAPIKey,
		pageSpeedKey:   opts.PageSpeedAPIKey,
		placesBase:     opts.PlacesBaseURL,
		pageSpeedBase:  opts.PageSpeedBaseURL,
		maxRetries:     opts.MaxRetries,
		minBackoff:     opts.MinBackoff,
		pageTokenDelay: opts.PageTokenDelay,
		httpClient:     opts.HTTPClient,
		log:            opts.Logger,
	}
	if c.placesBase == "" {
		c.placesBase = DefaultPlacesBaseURL
	}
	if c.pageSpeedBase == "" {
		c.pageSpeedBase = DefaultPageSpeedBaseURL
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.minBackoff <= 0 {
		c.minBackoff = 500 * time.Millisecond
	}
	switch {
	case c.pageTokenDelay == 0:
		c.pageTokenDelay = 2 * time.Second
	case c.pageTokenDelay < 0:
		c.pageTokenDelay = 0
	}
	if c.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	if opts.RequestsPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if opts.CacheTTL > 0 {
		c.cache = newResponseCache(opts.CacheTTL, time.Now)
	}
	return c
}

// HasPlacesKey reports whether live Places calls can be made.
func (c *Client) HasPlacesKey() bool {
	return c.placesKey != ""
}

// retryableError marks failures worth another attempt.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// getJSON performs a GET against base+path with query, retrying transient
// failures, and decodes the body into out. check, when non-nil, inspects
// the decoded body for API-level status errors.
func (c *Client) getJSON(ctx context.Context, service, base, path string, query url.Values, apiKey string, out interface{}, check func() error) error {
	cacheKey := base + path + "?" + query.Encode()

	if c.cache != nil {
		if body, ok := c.cache.get(cacheKey); ok {
			c.log.WithFields(logrus.Fields{"service": service, "path": path}).Debug("cache hit")
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("failed to decode cached %s response: %w", service, err)
			}
			return nil
		}
	}

	// The key is added after computing the cache key so it never leaks into it.
	fullQuery := url.Values{}
	for k, v := range query {
		fullQuery[k] = v
	}
	if apiKey != "" {
		fullQuery.Set("key", apiKey)
	}
	fullURL := base + path + "?" + fullQuery.Encode()

	b := &backoff.Backoff{
		Min:    c.minBackoff,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := b.Duration()
			c.log.WithFields(logrus.Fields{
				"service": service,
				"path":    path,
				"attempt": attempt,
				"delay":   delay,
			}).Warnf("retrying after error: %v", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := c.doGet(ctx, service, fullURL)
		if err == nil {
			if err = json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", service, err)
			}
			if check != nil {
				err = check()
			}
			if err == nil {
				if c.cache != nil {
					c.cache.set(cacheKey, body)
				}
				return nil
			}
		}

		var re *retryableError
		if !asRetryable(err, &re) {
			return err
		}
		lastErr = re.err
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if isQuota(lastErr) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, lastErr)
	}
	return fmt.Errorf("%s request failed after %d attempts: %w", service, c.maxRetries+1, lastErr)
}

func (c *Client) doGet(ctx context.Context, service, fullURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.log.WithFields(logrus.Fields{"service": service, "url": redactKey(req.URL)}).Debug("sending request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redactKey(req.URL)
		}
		return nil, &retryableError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &retryableError{err: apiErr}
		}
		return nil, apiErr
	}
	return body, nil
}

// errorMessage pulls a human message out of a Google error body.
func errorMessage(body []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Error.Message != "" {
			return env.Error.Message
		}
		if env.ErrorMessage != "" {
			return env.ErrorMessage
		}
	}
	msg := string(body)
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	return msg
}

func redactKey(u *url.URL) string {
	q := u.Query()
	if q.Get("key") != "" {
		q.Set("key", "REDACTED")
	}
	cp := *u
	cp.RawQuery = q.Encode()
	return cp.String()
}
