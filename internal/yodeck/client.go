// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

/*
client.go - Yodeck REST Gateway

Every call to the signage platform goes through Client.Do, which applies,
in order:

  - Concurrency bound: a weighted semaphore (FIFO waiters) caps in-flight
    requests. A permit covers one HTTP attempt and is released before any
    backoff sleep, so a throttled caller never blocks the others.
  - Pacing: optional token bucket (requests_per_second).
  - Per-attempt timeout: 15s default, 30s for upload-origin calls.
  - Circuit breaker: transport failures and 5xx responses trip it.
  - Retry: HTTP 429 and transport failures are retried with
    base * 2^attempt (honouring a longer Retry-After) up to MaxRetries.
    404 and 400/422 are returned immediately.

Failures surface as *Error so callers can branch on Kind and Code without
string matching.
*/
//nolint:staticcheck // File documentation, not package doc
package yodeck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/metrics"
)

const (
	// maxResponseBytes bounds how much of a response body is buffered.
	maxResponseBytes = 32 << 20

	// maxRetryAfter caps a server-provided Retry-After.
	maxRetryAfter = time.Minute
)

// Options configures a Client.
type Options struct {
	BaseURL       string
	TokenLabel    string
	TokenValue    string
	MaxConcurrent int
	Timeout       time.Duration
	UploadTimeout time.Duration
	MaxRetries    int
	RetryBase     time.Duration
	PageSize      int

	// RequestsPerSecond enables pacing when > 0.
	RequestsPerSecond float64
	Burst             int

	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

func (o *Options) applyDefaults() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 5
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = 30 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBase <= 0 {
		o.RetryBase = time.Second
	}
	if o.PageSize <= 0 {
		o.PageSize = 100
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if o.BreakerMaxFailures == 0 {
		o.BreakerMaxFailures = 5
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = 30 * time.Second
	}
}

// Client is the rate-limited gateway to the Yodeck API. It is safe for
// concurrent use.
type Client struct {
	baseURL       *url.URL
	authHeader    string
	httpClient    *http.Client
	sem           *semaphore.Weighted
	limiter       *rate.Limiter
	breaker       *gobreaker.CircuitBreaker[*rawResponse]
	timeout       time.Duration
	uploadTimeout time.Duration
	maxRetries    int
	retryBase     time.Duration
	pageSize      int

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client. The token label and value are both required.
func New(opts Options) (*Client, error) {
	opts.applyDefaults()

	if opts.TokenLabel == "" || opts.TokenValue == "" {
		return nil, errors.New("yodeck: token label and value are required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("yodeck: invalid base URL %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		baseURL:       base,
		authHeader:    fmt.Sprintf("Token %s:%s", opts.TokenLabel, opts.TokenValue),
		httpClient:    httpClient,
		sem:           semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		timeout:       opts.Timeout,
		uploadTimeout: opts.UploadTimeout,
		maxRetries:    opts.MaxRetries,
		retryBase:     opts.RetryBase,
		pageSize:      opts.PageSize,
		sleep:         sleepContext,
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	}
	c.breaker = newBreaker("yodeck-api", opts.BreakerMaxFailures, opts.BreakerTimeout)
	return c, nil
}

// PageSize returns the configured list page size.
func (c *Client) PageSize() int { return c.pageSize }

// Request describes one logical API call.
type Request struct {
	Method string

	// Path is relative to the base URL, e.g. "/screens/12/".
	Path string

	// URL, when set, is used verbatim instead of Path (pagination cursors,
	// signed upload URLs).
	URL string

	Query url.Values

	// Body is JSON-encoded when non-nil.
	Body interface{}

	// Stream is sent as-is instead of Body. Streams cannot be replayed, so a
	// streamed request is never retried.
	Stream        io.Reader
	ContentType   string
	ContentLength int64

	// Endpoint is the metrics/logging label; defaults to Path.
	Endpoint string

	// Upload selects the longer upload timeout.
	Upload bool

	// NoAuth omits the Authorization header (signed storage URLs).
	NoAuth bool
}

func (r *Request) label() string {
	if r.Endpoint != "" {
		return r.Endpoint
	}
	if r.Path != "" {
		return r.Path
	}
	return "external"
}

type rawResponse struct {
	status int
	header http.Header
	body   []byte
}

var (
	errServerStatus = errors.New("server error status")
	errCircuitOpen  = errors.New("circuit breaker open")
)

// Do executes req and decodes a 2xx JSON body into out (when out is non-nil).
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	start := time.Now()
	label := req.label()

	var payload []byte
	if req.Body != nil && req.Stream == nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("yodeck: encode %s %s body: %w", req.Method, label, err)
		}
		payload = b
	}

	maxRetries := c.maxRetries
	if req.Stream != nil {
		maxRetries = 0
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.attempt(ctx, &req, payload)
		if err != nil {
			if ctx.Err() != nil {
				metrics.RecordGatewayRequest(req.Method, label, string(KindTransport), time.Since(start))
				return &Error{Kind: KindTransport, Method: req.Method, Endpoint: label, Err: ctx.Err()}
			}
			gerr := &Error{Kind: KindTransport, Method: req.Method, Endpoint: label, Timeout: isTimeout(err), Err: err}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				gerr.Err = fmt.Errorf("%w: %v", errCircuitOpen, err)
				metrics.RecordGatewayRequest(req.Method, label, string(KindTransport), time.Since(start))
				return gerr
			}
			if attempt >= maxRetries {
				metrics.RecordGatewayRequest(req.Method, label, string(KindTransport), time.Since(start))
				return gerr
			}
			delay := c.backoff(attempt)
			metrics.RecordGatewayRetry("transport")
			logging.Warn().Err(err).Str("endpoint", label).Int("attempt", attempt+1).
				Dur("retry_delay", delay).Msg("Yodeck request failed, retrying")
			if serr := c.sleep(ctx, delay); serr != nil {
				return &Error{Kind: KindTransport, Method: req.Method, Endpoint: label, Err: serr}
			}
			continue
		}

		if resp.status == http.StatusTooManyRequests {
			if attempt >= maxRetries {
				metrics.RecordGatewayRequest(req.Method, label, string(KindRateLimited), time.Since(start))
				return &Error{Kind: KindRateLimited, Method: req.Method, Endpoint: label, Status: resp.status, Body: resp.body}
			}
			delay := c.backoff(attempt)
			if ra := retryAfter(resp.header); ra > delay {
				delay = ra
			}
			metrics.RecordGatewayRetry("rate_limited")
			logging.Warn().Str("endpoint", label).Int("attempt", attempt+1).Int("max_retries", maxRetries).
				Dur("retry_delay", delay).Msg("Yodeck rate limited (HTTP 429), retrying")
			if serr := c.sleep(ctx, delay); serr != nil {
				return &Error{Kind: KindTransport, Method: req.Method, Endpoint: label, Err: serr}
			}
			continue
		}

		if resp.status < 200 || resp.status >= 300 {
			kind := classifyStatus(resp.status)
			metrics.RecordGatewayRequest(req.Method, label, string(kind), time.Since(start))
			return &Error{Kind: kind, Method: req.Method, Endpoint: label, Status: resp.status, Body: resp.body}
		}

		metrics.RecordGatewayRequest(req.Method, label, "ok", time.Since(start))
		if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.body, out); err != nil {
			return &Error{Kind: KindDecode, Method: req.Method, Endpoint: label, Status: 0, Body: resp.body, Err: err}
		}
		return nil
	}
}

// attempt performs exactly one HTTP exchange while holding a permit.
func (c *Client) attempt(ctx context.Context, req *Request, payload []byte) (*rawResponse, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	metrics.TrackGatewayPermit(true)
	defer func() {
		metrics.TrackGatewayPermit(false)
		c.sem.Release(1)
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	timeout := c.timeout
	if req.Upload {
		timeout = c.uploadTimeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hreq, err := c.newHTTPRequest(actx, req, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.breaker.Execute(func() (*rawResponse, error) {
		r, err := c.httpClient.Do(hreq)
		if err != nil {
			return nil, err
		}
		defer func() { _ = r.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxResponseBytes))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		raw := &rawResponse{status: r.StatusCode, header: r.Header, body: body}
		if r.StatusCode >= http.StatusInternalServerError {
			return raw, errServerStatus
		}
		return raw, nil
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	return resp, err
}

func (c *Client) newHTTPRequest(ctx context.Context, req *Request, payload []byte) (*http.Request, error) {
	target := req.URL
	if target == "" {
		u := *c.baseURL
		u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(req.Path, "/")
		if len(req.Query) > 0 {
			u.RawQuery = req.Query.Encode()
		}
		target = u.String()
	}

	var body io.Reader = http.NoBody
	switch {
	case req.Stream != nil:
		body = req.Stream
	case payload != nil:
		body = bytes.NewReader(payload)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if req.Stream != nil && req.ContentLength > 0 {
		hreq.ContentLength = req.ContentLength
	}

	if !req.NoAuth {
		hreq.Header.Set("Authorization", c.authHeader)
		hreq.Header.Set("Accept", "application/json")
	}
	switch {
	case req.ContentType != "":
		hreq.Header.Set("Content-Type", req.ContentType)
	case payload != nil:
		hreq.Header.Set("Content-Type", "application/json")
	}
	return hreq, nil
}

// backoff returns base * 2^attempt.
func (c *Client) backoff(attempt int) time.Duration {
	return c.retryBase * time.Duration(1<<attempt)
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
