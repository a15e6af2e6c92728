// Package fetch provides the pooled, retrying HTTP transport used for all
// outbound requests (feed polls, readability pages, icon downloads).
//
// The transport owns retries and backoff only; it never touches storage.
// Turning an exhausted retry into persisted feed state is the caller's job.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// Defaults for the retry curve.
const (
	DefaultRetries   = 2
	DefaultBaseDelay = 300 * time.Millisecond
	DefaultMaxDelay  = 2000 * time.Millisecond
	DefaultTimeout   = 30 * time.Second

	maxBodyBytes = 10 << 20
)

// retryableStatuses are the response codes retried automatically.
var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true, // 408
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:          true, // 502
	http.StatusServiceUnavailable:  true, // 503
	http.StatusGatewayTimeout:      true, // 504
}

// Config tunes the client. Zero values fall back to the defaults above.
type Config struct {
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Timeout   time.Duration
	UserAgent string
	Accept    string
}

// Conditional carries the cache validators from the previous successful
// response. Zero values send an unconditional request.
type Conditional struct {
	ETag         string
	LastModified string
}

// Result is a fully read response.
type Result struct {
	StatusCode   int
	Body         []byte
	ContentType  string
	ETag         string
	LastModified string
	NotModified  bool
	RetryAfter   time.Duration // server-provided hint, 0 when absent
}

// StatusError reports a non-success response after retries are exhausted.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Client wraps a keep-alive pooled http.Client with bounded retries.
// Repeated polling of the same origins reuses idle connections, so TLS
// and connection setup amortize across ticks.
type Client struct {
	http *http.Client
	cfg  Config
	log  *logrus.Entry
}

// New builds a client with a shared connection pool.
func New(cfg Config, log *logrus.Entry) *Client {
	if cfg.Retries == 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "newsriver/1.0"
	}
	if cfg.Accept == "" {
		cfg.Accept = "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &Client{
		http: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		cfg:  cfg,
		log:  log,
	}
}

// Get fetches url, retrying transient failures. The context bounds the
// whole call including retries; enrichment callers pass a shorter deadline
// than feed polls.
func (c *Client) Get(ctx context.Context, url string, cond Conditional) (*Result, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt - 1)
			c.log.WithFields(logrus.Fields{"url": url, "attempt": attempt, "delay": delay}).
				Debug("retrying fetch")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		res, err := c.do(ctx, url, cond)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, url string, cond Conditional) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", c.cfg.Accept)
	if cond.ETag != "" {
		req.Header.Set("If-None-Match", cond.ETag)
	}
	if cond.LastModified != "" {
		req.Header.Set("If-Modified-Since", cond.LastModified)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &Result{
			StatusCode:  resp.StatusCode,
			NotModified: true,
		}, nil
	case resp.StatusCode >= 400:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<12))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Result{
		StatusCode:   resp.StatusCode,
		Body:         body,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		RetryAfter:   parseRetryAfter(resp.Header.Get("Retry-After")),
	}, nil
}

// backoffDelay computes min(maxDelay, baseDelay*2^attempt) with uniform
// jitter in [0.8, 1.2].
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.cfg.BaseDelay << uint(attempt)
	if delay > c.cfg.MaxDelay || delay <= 0 {
		delay = c.cfg.MaxDelay
	}
	jitter := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(delay) * jitter)
}

// retryable classifies errors worth another attempt: the configured status
// set plus transient network failures (timeouts, resets, DNS).
func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return retryableStatuses[statusErr.StatusCode]
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
