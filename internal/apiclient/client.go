// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// The client knows nothing about sessions: callers pass the key for each
// request and interpret ErrUnauthorized themselves. Retries are limited to
// idempotent GET requests.

package apiclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Configuration constants for the marketplace API.
const (
	// DefaultBaseURL is the production API endpoint.
	DefaultBaseURL = "https://squidbay-api-production.up.railway.app"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of extra attempts for failed GET requests.
	DefaultMaxRetries = 2

	// DefaultRequestsPerSecond bounds the request rate of one client.
	DefaultRequestsPerSecond = 10

	// KeyHeader carries the admin key on protected requests.
	KeyHeader = "x-squidbay-key"

	// RequestIDHeader correlates client logs with server logs.
	RequestIDHeader = "X-Request-ID"

	// MaxResponseSize is the maximum accepted response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024

	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 250 * time.Millisecond
)

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	// Key is attached as KeyHeader when non-empty.
	Key string
	// Body is JSON-encoded when non-nil.
	Body any
}

// Client is a client for the marketplace REST API.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	userAgent  string
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit sets the sustained request rate. Zero disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithMaxRetries sets how many times a failed GET is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithLogger sets the logger used for request/response lines.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultRequestsPerSecond),
		maxRetries: DefaultMaxRetries,
		userAgent:  "squidops/" + Version,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version is reported in the User-Agent header.
var Version = "dev"

// BaseURL returns the API root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs the request and returns the raw JSON body.
//
// An empty 2xx body yields nil. Non-2xx responses become *APIError (401
// matches ErrUnauthorized); transport failures become *NetworkError.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", req.Method, req.Path, err)
		}
		payload = b
	}

	attempts := 1
	if req.Method == http.MethodGet {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, &NetworkError{Op: req.Method + " " + req.Path, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		body, err := c.once(ctx, req, payload)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// once performs a single HTTP round trip.
func (c *Client) once(ctx context.Context, req Request, payload []byte) (json.RawMessage, error) {
	op := req.Method + " " + req.Path
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &NetworkError{Op: op, Err: err}
		}
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", op, err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(RequestIDHeader, requestID)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Key != "" {
		httpReq.Header.Set(KeyHeader, req.Key)
	}

	// Headers are never logged; the key only appears as a fingerprint.
	c.logger.Debug("api request",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.String("request_id", requestID),
		zap.String("key", Fingerprint(req.Key)))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("api transport error", zap.String("path", req.Path), zap.Error(err))
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > MaxResponseSize {
		return nil, &NetworkError{Op: op, Err: ErrResponseTooLarge}
	}

	c.logger.Debug("api response",
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
		zap.String("request_id", requestID))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, &APIError{Status: resp.StatusCode, Message: "response is not valid JSON"}
	}
	return json.RawMessage(body), nil
}

// GetJSON issues a GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path, key string, out any) error {
	raw, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Key: key})
	if err != nil {
		return err
	}
	return Decode(raw, out)
}

// Decode unmarshals raw into out, treating an empty body as a no-op.
func Decode(raw json.RawMessage, out any) error {
	if len(raw) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Fingerprint returns a short, non-reversible identifier for a key.
// SECURITY: never log key material; use this instead.
func Fingerprint(key string) string {
	if key == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:4])
}

// retryable reports whether a failed attempt may be repeated.
func retryable(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return !errors.Is(netErr.Err, context.Canceled) && !errors.Is(netErr.Err, ErrResponseTooLarge)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	return false
}
