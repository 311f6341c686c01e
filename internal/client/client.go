// Package client performs the actual upstream HTTP calls for weather
// providers. Every fetch goes through the provider's body cache and the
// per-host circuit breaker: network failures and non-2xx statuses trip the
// breaker, cache hits and JSON parse errors do not.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/weathermen/prometheus-weathermen/internal/cache"
	"github.com/weathermen/prometheus-weathermen/internal/circuitbreaker"
)

const requestTimeout = 10 * time.Second

// maxBodySize bounds upstream response bodies (the DWD station catalog is the
// largest at a few MB).
const maxBodySize = 32 << 20

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Client fetches upstream bodies through a breaker registry.
type Client struct {
	http     *http.Client
	breakers *circuitbreaker.Registry
	logger   *zap.Logger
}

// New creates a Client. A nil httpClient gets a default with a 10s timeout.
func New(httpClient *http.Client, breakers *circuitbreaker.Registry, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		http:     httpClient,
		breakers: breakers,
		logger:   logger,
	}
}

// FetchBody returns the response body for a GET of rawURL, consulting hc
// first. On a cache miss the call runs under the breaker for rawURL's host;
// a breaker rejection surfaces as circuitbreaker.ErrOpen. Bodies are cached
// only on success.
func (c *Client) FetchBody(ctx context.Context, hc *cache.HTTPCache, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	key := http.MethodGet + " " + rawURL

	return hc.GetOrFetch(key, func() ([]byte, error) {
		breaker := c.breakers.ForHost(u.Host)
		var body []byte
		err := breaker.Call(func() error {
			var callErr error
			body, callErr = c.get(ctx, rawURL, u)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		return body, nil
	})
}

func (c *Client) get(ctx context.Context, rawURL string, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("upstream request failed",
			zap.String("host", u.Host),
			zap.String("path", u.Path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("request %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		c.logger.Debug("upstream returned error status",
			zap.String("host", u.Host),
			zap.String("path", u.Path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: redact(u)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", u.Host, err)
	}

	c.logger.Debug("upstream request succeeded",
		zap.String("host", u.Host),
		zap.String("path", u.Path),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)
	return body, nil
}

// redact drops the query string, which can carry API keys.
func redact(u *url.URL) string {
	r := *u
	r.RawQuery = ""
	return r.String()
}
