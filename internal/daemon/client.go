// Package daemon is the client side of the download daemon's HTTP protocol.
package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/netdout/relay/internal/logctx"
	"github.com/netdout/relay/internal/settings"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout = 30 * time.Second

	// maxResponseSize bounds how much of a daemon response is read.
	maxResponseSize = 4 << 20

	// maxLoggedBody bounds how much of an error body is kept for logs.
	maxLoggedBody = 512
)

// Client talks to the download daemon. Every call resolves the endpoint
// afresh and is single-shot: no retry, no caching.
type Client struct {
	endpoints  settings.EndpointSource
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for daemon calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

func NewClient(endpoints settings.EndpointSource, opts ...Option) *Client {
	c := &Client{
		endpoints: endpoints,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Submit asks the daemon to create a download job and returns its response
// body unmodified. An empty Output is replaced by DefaultOutput.
func (c *Client) Submit(ctx context.Context, req JobRequest) (json.RawMessage, error) {
	if err := validateJobRequest(req); err != nil {
		return nil, err
	}

	if req.Output == "" {
		req.Output = DefaultOutput
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job request: %w", err)
	}

	return c.do(ctx, "submit", http.MethodPost, "/downloads", body)
}

// QueryStatus fetches the daemon's view of a job. The handle is sent as is
// (path-escaped); the daemon decides whether it exists.
func (c *Client) QueryStatus(ctx context.Context, handle JobHandle) (json.RawMessage, error) {
	return c.do(ctx, "query_status", http.MethodGet, "/downloads/"+url.PathEscape(string(handle)), nil)
}

// Health checks that the daemon answers its health route with a 2xx status.
func (c *Client) Health(ctx context.Context) error {
	endpoint := c.endpoints.Endpoint(ctx)

	resp, err := c.send(ctx, endpoint, http.MethodGet, "/health", nil)
	if err != nil {
		return &TransportError{Operation: "health", Endpoint: endpoint.String(), Err: err}
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DaemonStatusError{Operation: "health", StatusCode: resp.StatusCode}
	}

	return nil
}

// Endpoint reports the address the next call would use.
func (c *Client) Endpoint(ctx context.Context) settings.Endpoint {
	return c.endpoints.Endpoint(ctx)
}

// do performs one call and applies the same checks to every JSON operation:
// a 2xx status and a body that parses as JSON.
func (c *Client) do(ctx context.Context, operation, method, path string, body []byte) (json.RawMessage, error) {
	endpoint := c.endpoints.Endpoint(ctx)
	logger := logctx.LoggerFromContext(ctx).With("operation", operation, "endpoint", endpoint.String())

	logger.DebugContext(ctx, "calling daemon", "method", method, "path", path)

	resp, err := c.send(ctx, endpoint, method, path, body)
	if err != nil {
		logger.ErrorContext(ctx, "daemon unreachable", "err", err)

		return nil, &TransportError{Operation: operation, Endpoint: endpoint.String(), Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		logger.ErrorContext(ctx, "failed to read daemon response", "status", resp.StatusCode, "err", err)

		return nil, &TransportError{Operation: operation, Endpoint: endpoint.String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.ErrorContext(ctx, "non-2xx response", "status", resp.StatusCode, "body", truncate(payload))

		return nil, &DaemonStatusError{Operation: operation, StatusCode: resp.StatusCode, Body: truncate(payload)}
	}

	if !json.Valid(payload) {
		logger.ErrorContext(ctx, "daemon response is not json", "status", resp.StatusCode, "body", truncate(payload))

		return nil, &MalformedResponseError{Operation: operation, Err: errors.New("response body is not valid JSON")}
	}

	logger.DebugContext(ctx, "daemon call succeeded", "status", resp.StatusCode)

	return json.RawMessage(payload), nil
}

func (c *Client) send(ctx context.Context, endpoint settings.Endpoint, method, path string, body []byte) (*http.Response, error) {
	target := strings.TrimRight(endpoint.String(), "/") + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func validateJobRequest(req JobRequest) error {
	if strings.TrimSpace(req.URL) == "" {
		return &InvalidRequestError{Field: "url", Reason: "is required"}
	}

	u, err := url.Parse(req.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &InvalidRequestError{Field: "url", Reason: "must be an absolute URL"}
	}

	return nil
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "..."
	}

	return string(b)
}
