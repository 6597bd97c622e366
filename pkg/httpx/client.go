package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 4
	defaultBackoff     = 500 * time.Millisecond
	defaultMaxBackoff  = 30 * time.Second
	defaultRetryAfter  = 10 * time.Minute
	defaultUserAgent   = "Mozilla/5.0 (compatible; eodprices/1.0)"

	// maxSnippet bounds the response body carried by HTTPError.
	maxSnippet = 512
	// maxBody bounds how much of a successful response is read.
	maxBody = 8 << 20
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client issues GET requests with request spacing, retry and backoff.
type Client struct {
	httpClient    *http.Client
	minInterval   time.Duration
	maxAttempts   int
	backoff       time.Duration
	maxBackoff    time.Duration
	maxRetryAfter time.Duration
	timeout       time.Duration
	userAgent     string
	sleep         SleepFunc
	now           func() time.Time

	mu   sync.Mutex
	last time.Time
}

// Option configures a new Client.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMinInterval sets the minimum spacing between two requests of this client.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.minInterval = d
		}
	}
}

// WithMaxAttempts sets the total attempt budget per call, including the first.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the initial and maximum retry backoff.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.backoff = initial
		}
		if max > 0 {
			c.maxBackoff = max
		}
	}
}

// WithMaxRetryAfter sets the longest server-requested Retry-After the client
// will wait out. Longer hints fail the call instead of retrying early.
func WithMaxRetryAfter(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxRetryAfter = d
		}
	}
}

// WithTimeout bounds each individual attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.userAgent = ua
		}
	}
}

// WithSleep replaces the sleep primitive used for spacing and backoff.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// WithClock replaces the clock used for request spacing.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{},
		maxAttempts:   defaultMaxAttempts,
		backoff:       defaultBackoff,
		maxBackoff:    defaultMaxBackoff,
		maxRetryAfter: defaultRetryAfter,
		timeout:       defaultTimeout,
		userAgent:     defaultUserAgent,
		sleep:         SleepContext,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is a fully read 2xx response.
type Response struct {
	URL    string
	Status int
	Header http.Header
	Body   []byte
}

// Cookies parses Set-Cookie headers of the response.
func (r *Response) Cookies() []*http.Cookie {
	if r == nil {
		return nil
	}
	return (&http.Response{Header: r.Header}).Cookies()
}

// RequestOption decorates an outgoing request.
type RequestOption func(*http.Request)

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithCookie attaches a cookie to the request.
func WithCookie(cookie *http.Cookie) RequestOption {
	return func(r *http.Request) {
		if cookie != nil {
			r.AddCookie(cookie)
		}
	}
}

// GetJSON performs Get and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any, opts ...RequestOption) error {
	resp, err := c.Get(ctx, url, append([]RequestOption{WithHeader("Accept", "application/json")}, opts...)...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("httpx: decode %s: %w", url, err)
	}
	return nil
}

// GetText performs Get and returns the body as a string.
func (c *Client) GetText(ctx context.Context, url string, opts ...RequestOption) (string, error) {
	resp, err := c.Get(ctx, url, opts...)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

// Get issues a GET request. 429, 5xx and transport failures are retried up to
// the attempt budget; any other non-2xx status fails immediately. A 429 with a
// Retry-After hint waits the full hint, or fails when the hint exceeds
// WithMaxRetryAfter. HTTP failures are returned as *HTTPError.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	backoff := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.do(ctx, url, opts)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		delay, retry := c.retryDelay(err, backoff)
		if !retry || attempt == c.maxAttempts {
			break
		}
		logx.WithContext(ctx).Infof("httpx: retry %d/%d url=%s in %s: %v", attempt, c.maxAttempts-1, url, delay, err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, url string, opts []RequestOption) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpx: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxSnippet))
		return nil, &HTTPError{
			URL:        url,
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Snippet:    string(snippet),
			Header:     resp.Header.Clone(),
		}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return &Response{URL: url, Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// retryDelay decides whether err is retryable and how long to wait first.
func (c *Client) retryDelay(err error, backoff time.Duration) (time.Duration, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Status == http.StatusTooManyRequests:
			if d, ok := parseRetryAfter(httpErr.Header.Get("Retry-After"), c.now()); ok {
				return d, d <= c.maxRetryAfter
			}
			return backoff, true
		case httpErr.Status >= 500:
			return backoff, true
		default:
			return 0, false
		}
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return backoff, true
	}
	return 0, false
}

// wait enforces the minimum spacing relative to the previous request.
func (c *Client) wait(ctx context.Context) error {
	if c.minInterval <= 0 {
		return nil
	}
	c.mu.Lock()
	now := c.now()
	next := c.last.Add(c.minInterval)
	if now.Before(next) {
		c.last = next
	} else {
		c.last = now
	}
	c.mu.Unlock()

	if d := next.Sub(now); d > 0 {
		return c.sleep(ctx, d)
	}
	return nil
}

func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// SleepContext sleeps for d or returns ctx.Err() when the context ends first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
