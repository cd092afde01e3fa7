package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// Doer executes HTTP requests. Both Client and CircuitBreakerClient satisfy it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Getter issues JSON GET requests. Both Client and CircuitBreakerClient satisfy it.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Config holds HTTP client configuration
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryWaitMin    time.Duration
	RetryWaitMax    time.Duration
	MaxConnsPerHost int
	UserAgent       string
}

// DefaultConfig returns sensible defaults for HTTP client
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryWaitMin:    time.Second,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 100,
		UserAgent:       "cartstore",
	}
}

// Client wraps http.Client with retry logic and better defaults
type Client struct {
	httpClient *http.Client
	config     Config
}

// New creates a new HTTP client with retry and connection pooling
func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		config: cfg,
	}
}

// Do executes the request, retrying network errors and 5xx responses (except
// 501) with jittered exponential backoff. Only requests without a body, or
// with a GetBody func, are retried.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if c.config.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	maxRetries := c.config.MaxRetries
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		maxRetries = 0
	}

	var resp *http.Response
	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt); err != nil {
				return nil, err
			}
			if req.GetBody != nil {
				body, gerr := req.GetBody()
				if gerr != nil {
					return nil, fmt.Errorf("rewind request body: %w", gerr)
				}
				req.Body = body
			}
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			if isRetryableError(err) && attempt < maxRetries {
				continue
			}
			return nil, fmt.Errorf("http request failed after %d attempts: %w", attempt+1, err)
		}

		if resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented && attempt < maxRetries {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			continue
		}

		return resp, nil
	}

	return resp, err
}

// wait sleeps for the backoff of the given attempt or until ctx is done.
func (c *Client) wait(ctx context.Context, attempt int) error {
	d := c.config.RetryWaitMin * time.Duration(1<<uint(attempt-1))
	if c.config.RetryWaitMax > 0 && d > c.config.RetryWaitMax {
		d = c.config.RetryWaitMax
	}

	timer := time.NewTimer(addJitter(d))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get performs HTTP GET request with retry
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create GET request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.Do(ctx, req)
}

// addJitter spreads d by ±25% so synchronized clients do not retry in lockstep.
func addJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	spread := float64(d) * 0.25
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}

// isRetryableError reports whether err is a transient network failure.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
