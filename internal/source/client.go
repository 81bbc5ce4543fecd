package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultRetries    = 3
	defaultRetryDelay = 500 * time.Millisecond

	// DefaultUserAgent is a desktop browser UA; the API rejects bare Go clients
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36"
)

// StatusError reports a non-successful HTTP response
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Options configures a Client. Zero values pick the defaults.
type Options struct {
	UserAgent  string
	Proxy      string        // Optional proxy URL (http, https or socks5)
	Timeout    time.Duration // Time to wait for response headers
	Retries    int           // Extra attempts on network errors and 5xx; negative disables
	RetryDelay time.Duration // First backoff delay, doubled on every attempt
}

// Client is the HTTP handle shared by enumeration, detail fetches and
// transfers. It retries transient failures with exponential backoff.
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewClient creates a client from options
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Header timeout only: a whole-request timeout would cut long streams
	transport.ResponseHeaderTimeout = opts.Timeout
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		userAgent:  opts.UserAgent,
		maxRetries: opts.Retries,
		retryDelay: opts.RetryDelay,
		logger:     logger,
	}, nil
}

// Get issues a GET with optional extra headers. See Do.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.Do(req)
}

// Do sends req, retrying network errors and 5xx responses. The last response
// is returned whatever its status; the caller owns its body. An error is only
// returned when no response could be obtained.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	req.Header.Set("User-Agent", c.userAgent)
	reqURL := req.URL.String()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1))
			c.logger.Debug("retrying request", "attempt", attempt, "delay", delay, "url", reqURL)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			c.logger.Warn("request failed", "error", err, "url", reqURL, "attempt", attempt, "maxRetries", c.maxRetries)
			continue
		}

		if resp.StatusCode >= 500 && resp.StatusCode < 600 && attempt < c.maxRetries {
			c.logger.Warn("server error, will retry",
				"status", resp.StatusCode,
				"attempt", attempt,
				"maxRetries", c.maxRetries,
				"url", reqURL,
			)
			io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			resp.Body.Close()
			continue
		}

		return resp, nil
	}

	c.logger.Error("request failed after retries", "error", lastErr, "url", reqURL)
	return nil, lastErr
}

// GetJSON fetches rawURL and decodes a 200 response into dest
func (c *Client) GetJSON(ctx context.Context, rawURL string, dest any) error {
	resp, err := c.Get(ctx, rawURL, http.Header{"Accept": []string{"application/json"}})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
