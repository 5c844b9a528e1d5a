package httpx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"freqgate/pkg/logger"
)

// Defaults applied when the corresponding Client field is zero.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultTimeout     = 30 * time.Second
)

// Request describes one outbound call. Constructed per call, never reused.
type Request struct {
	Method  string
	URL     string
	Header  map[string]string
	Body    []byte
	Service string // for diagnostics only
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Client executes requests with retry and backoff. The zero value is not
// usable; construct with New.
type Client struct {
	httpClient  *http.Client
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration // per attempt, so a slow attempt never eats the retry budget
}

// Option configures a Client.
type Option func(*Client)

// WithMaxAttempts sets the retry budget.
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// WithBaseDelay sets the backoff base delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the underlying http.Client (for testing).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{},
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	return c
}

// Do executes the request, retrying on connection-level failures, timeouts,
// 429 and 5xx responses. Delay before attempt k (k>=2) is baseDelay*2^(k-2).
// A terminal client error (4xx other than 429) is returned immediately as
// *HTTPError; an exhausted retry budget is returned as *ExhaustedError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.baseDelay << (attempt - 2)
			select {
			case <-ctx.Done():
				return nil, &ExhaustedError{Service: req.Service, Attempts: attempt - 1, Last: ctx.Err()}
			case <-time.After(delay):
			}
		}

		attempts++
		resp, err := c.attempt(ctx, req, attempt)
		if err == nil {
			return resp, nil
		}

		// Terminal client error: never retried.
		if he, ok := err.(*HTTPError); ok && !retryableStatus(he.Status) {
			return nil, he
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return nil, &ExhaustedError{Service: req.Service, Attempts: attempts, Last: lastErr}
}

// attempt performs a single request with a per-attempt timeout and logs the
// outcome.
func (c *Client) attempt(ctx context.Context, req Request, attempt int) (*Response, error) {
	attemptCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, err
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		logger.Warn().
			Str("service", req.Service).
			Str("url", req.URL).
			Int("attempt", attempt).
			Err(err).
			Msg("Request attempt failed")
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		logger.Warn().
			Str("service", req.Service).
			Str("url", req.URL).
			Int("attempt", attempt).
			Err(err).
			Msg("Failed to read response body")
		return nil, err
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 400 {
		logger.Debug().
			Str("service", req.Service).
			Str("url", req.URL).
			Int("attempt", attempt).
			Int("status", httpResp.StatusCode).
			Msg("Request succeeded")
		return &Response{
			Status: httpResp.StatusCode,
			Header: httpResp.Header,
			Body:   body,
		}, nil
	}

	logger.Warn().
		Str("service", req.Service).
		Str("url", req.URL).
		Int("attempt", attempt).
		Int("status", httpResp.StatusCode).
		Msg("Request returned error status")

	return nil, &HTTPError{
		Status: httpResp.StatusCode,
		Body:   string(body),
		URL:    req.URL,
	}
}
