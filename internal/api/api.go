// Package api is a small HTTP client wrapper shared by the data
// fetchers: JSON requests with per-request headers, optional debug
// logging, cookie-jar sessions and retry with exponential backoff.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"oi-breakout-bot/internal/logger"
)

type Client struct {
	hc      *http.Client
	verbose bool
}

// ClientOption configures the client at construction.
type ClientOption func(*Client)

// WithTimeout caps the total request duration.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.hc.Timeout = timeout
	}
}

// WithLogging turns on per-request debug and error logging.
func WithLogging(enabled bool) ClientOption {
	return func(c *Client) {
		c.verbose = enabled
	}
}

// WithCookieJar attaches a cookie jar so session cookies persist across
// requests. NSE endpoints require the cookies set by a warmup page visit.
func WithCookieJar(jar http.CookieJar) ClientOption {
	return func(c *Client) {
		c.hc.Jar = jar
	}
}

func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		hc: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Request is a single HTTP call being assembled.
type Request struct {
	Method  string
	URL     string
	Body    any
	Headers map[string]string
	ctx     context.Context
}

// Response carries the drained body of a completed call.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

func NewRequest(method, url string) *Request {
	return &Request{
		Method:  method,
		URL:     url,
		Headers: make(map[string]string),
		ctx:     context.Background(),
	}
}

func (r *Request) WithContext(ctx context.Context) *Request {
	r.ctx = ctx
	return r
}

// WithBody sets the request body, JSON-encoded at send time.
func (r *Request) WithBody(body any) *Request {
	r.Body = body
	return r
}

func (r *Request) WithHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

// Do executes the request. Status codes of 400 and above come back as
// errors carrying the response body.
func (c *Client) Do(req *Request) (*Response, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		jsonBody, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(req.ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if c.verbose {
		logger.Debug(req.ctx, "HTTP request", "method", req.Method, "url", req.URL)
	}

	start := time.Now()
	httpResp, err := c.hc.Do(httpReq)
	if err != nil {
		if c.verbose {
			logger.ErrorWithErr(req.ctx, "HTTP request failed", err, "method", req.Method, "url", req.URL)
		}
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if c.verbose {
		logger.Debug(req.ctx, "HTTP response",
			"method", req.Method,
			"url", req.URL,
			"status", httpResp.StatusCode,
			"duration", time.Since(start),
			"body_size", len(body),
		)
	}

	if httpResp.StatusCode >= 400 {
		if c.verbose {
			logger.Warn(req.ctx, "HTTP error response",
				"method", req.Method,
				"url", req.URL,
				"status", httpResp.StatusCode,
			)
		}
		return nil, fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, string(body))
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		Headers:    httpResp.Header,
	}, nil
}

// GET performs a GET request with optional headers.
func (c *Client) GET(ctx context.Context, url string, headers ...map[string]string) (*Response, error) {
	req := NewRequest(http.MethodGet, url).WithContext(ctx)
	if len(headers) > 0 {
		for key, value := range headers[0] {
			req.WithHeader(key, value)
		}
	}
	return c.Do(req)
}

// POST performs a POST request with a JSON body and optional headers.
func (c *Client) POST(ctx context.Context, url string, body any, headers ...map[string]string) (*Response, error) {
	req := NewRequest(http.MethodPost, url).WithContext(ctx).WithBody(body)
	if len(headers) > 0 {
		for key, value := range headers[0] {
			req.WithHeader(key, value)
		}
	}
	return c.Do(req)
}

// ParseJSON decodes the response body into v.
func (r *Response) ParseJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

// BrowserHeaders mimics a desktop browser. The NSE warmup page rejects
// obviously non-browser agents.
func BrowserHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
	}
}

// NSEHeaders are the headers the NSE JSON API expects.
func NSEHeaders() map[string]string {
	return map[string]string{
		"User-Agent":       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		"Accept":           "application/json",
		"Accept-Language":  "en-US,en;q=0.9",
		"Referer":          "https://www.nseindia.com/",
		"X-Requested-With": "XMLHttpRequest",
	}
}

// RetryConfig tunes DoWithRetry.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 1 * time.Second,
		MaxWait:     5 * time.Second,
	}
}

// DoWithRetry retries failed requests with doubling backoff, honoring
// the request context while waiting.
func (c *Client) DoWithRetry(req *Request, config *RetryConfig) (*Response, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	wait := config.InitialWait

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		resp, err := c.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == config.MaxAttempts {
			break
		}
		if c.verbose {
			logger.Warn(req.ctx, "Request failed, retrying",
				"attempt", attempt, "wait", wait, "error", err.Error())
		}
		select {
		case <-time.After(wait):
		case <-req.ctx.Done():
			return nil, req.ctx.Err()
		}
		wait *= 2
		if wait > config.MaxWait {
			wait = config.MaxWait
		}
	}

	return nil, fmt.Errorf("all %d retry attempts failed: %w", config.MaxAttempts, lastErr)
}
