// Package http provides the per-user HTTP session used by virtual users.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Recorder receives the outcome of every request a Client issues.
type Recorder interface {
	RecordLatency(duration time.Duration, requestName string, success bool, bytes int64)
}

// PoolConfig contains the transport settings shared by all virtual users.
type PoolConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultPoolConfig returns sensible defaults for load testing.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewPooledClient creates the *http.Client shared by all virtual users.
func NewPooledClient(cfg PoolConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		TLSClientConfig:     cfg.tlsConfig(),
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// NewSocketDialer creates the websocket dialer shared by all virtual users.
// It honours the same proxy, TLS and timeout settings as NewPooledClient.
func NewSocketDialer(cfg PoolConfig) *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  cfg.tlsConfig(),
		HandshakeTimeout: cfg.Timeout,
	}
}

func (cfg PoolConfig) tlsConfig() *tls.Config {
	if !cfg.InsecureSkipVerify {
		return nil
	}
	return &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test targets
}

// Client issues requests against the system under test on behalf of one
// virtual user and records each outcome.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	recorder   Recorder
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a new HTTP client with the given options
func NewClient(options ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// WithHTTPClient makes the client issue requests through hc.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets the base URL for the client
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHeader adds a header to every request
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithRecorder sets where request outcomes are recorded
func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) {
		c.recorder = r
	}
}

// BaseURL returns the base URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Record forwards an outcome measured outside Do, e.g. a websocket exchange.
func (c *Client) Record(name string, duration time.Duration, success bool, bytes int64) {
	if c.recorder != nil {
		c.recorder.RecordLatency(duration, name, success, bytes)
	}
}

// Do executes req and returns the fully read response.
//
// A response with an error status is not an error; it is recorded as a
// failed request and returned. Transport errors are recorded and returned.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	name := req.MetricName()

	httpReq, err := req.Build(ctx, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", name, err)
	}

	for key, value := range c.headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.Record(name, time.Since(start), false, 0)
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	elapsed := time.Since(start)
	if err != nil {
		c.Record(name, elapsed, false, int64(len(body)))
		return nil, fmt.Errorf("%s: read body: %w", name, err)
	}

	resp := &Response{
		StatusCode:   httpResp.StatusCode,
		Status:       httpResp.Status,
		Headers:      httpResp.Header,
		Body:         body,
		ResponseTime: elapsed,
		RequestID:    requestID,
	}

	c.Record(name, elapsed, resp.StatusCode < 400, int64(len(body)))
	return resp, nil
}
