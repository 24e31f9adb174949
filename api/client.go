// Package api provides the control-plane HTTP client for the Fluxez API.
// It handles connection pooling, auth header injection, the response data
// envelope, and retries on transient failures.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fluxez/fluxez-go/auth"
	"github.com/fluxez/fluxez-go/config"
	"github.com/fluxez/fluxez-go/logger"
)

// DefaultMaxRetries is the number of retries for requests that fail with a
// transient error (network failure, 429, 5xx).
const DefaultMaxRetries = 3

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20 // 1 MB

// Error is an HTTP-level API error. Non-retryable statuses are returned to
// the caller as *Error without further attempts.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("fluxez api: status %d: %s", e.Status, e.Message)
}

// envelope is the standard Fluxez response wrapper. Every endpoint returns
// its payload under "data".
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Client is the Fluxez control-plane HTTP client with connection pooling
// and retry logic.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	baseURL    string
	auth       auth.Provider
	log        *logger.Logger

	maxRetries    uint64
	retryInterval time.Duration
}

// NewClient creates a new Client with a shared HTTP transport configured
// for connection pooling and the given credential provider.
func NewClient(cfg *config.Config, provider auth.Provider, log *logger.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.HTTPTimeout,
	}

	return &Client{
		httpClient:    httpClient,
		transport:     transport,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		auth:          provider,
		log:           log,
		maxRetries:    DefaultMaxRetries,
		retryInterval: 500 * time.Millisecond,
	}
}

// Close releases idle connections held by the pooled transport. The Client
// stays usable; later requests open fresh connections.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying *http.Client for reuse by other
// packages that need the same connection pool.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Get performs a GET request and decodes the data envelope into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post performs a POST request with a JSON body and decodes the data
// envelope into out. out may be nil when the response payload is not needed.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

// do performs the HTTP request with auth headers and retry logic for
// transient errors. Individual retries are logged at DEBUG to reduce noise;
// only the final failure surfaces to the caller.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body for %s %s: %w", method, path, err)
		}
	}

	url := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var respBody []byte
	operation := func() error {
		req, err := c.newRequest(ctx, method, url, jsonBody)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.Debug("API request failed, will retry",
				"method", method, "path", path, "error", err)
			return fmt.Errorf("%s %s: %w", method, path, err)
		}

		respBody, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if err != nil {
			c.log.Debug("Failed to read API response, will retry",
				"method", method, "path", path, "error", err)
			return fmt.Errorf("reading response for %s %s: %w", method, path, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			c.log.Debug("API request returned retryable status",
				"method", method, "path", path, "status", resp.StatusCode)
			return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		}

		if resp.StatusCode >= 400 {
			return backoff.Permanent(&Error{
				Status:  resp.StatusCode,
				Message: apiErrorMessage(respBody),
			})
		}

		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, c.maxRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		c.log.Warn("API request failed",
			"method", method, "path", path, "error", err)
		return err
	}

	c.log.Debug("API request completed", "method", method, "path", path)

	if out == nil {
		return nil
	}
	return decodeEnvelope(respBody, out)
}

func (c *Client) newRequest(ctx context.Context, method, url string, jsonBody []byte) (*http.Request, error) {
	var reader io.Reader
	if jsonBody != nil {
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}

	if jsonBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.auth.AuthHeaders() {
		req.Header.Set(k, v)
	}

	return req, nil
}

// decodeEnvelope unwraps the standard {"data": ...} response wrapper into
// out. Responses without the wrapper are decoded directly.
func decodeEnvelope(body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Data != nil {
		return json.Unmarshal(env.Data, out)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding API response: %w", err)
	}
	return nil
}

// apiErrorMessage extracts a human-readable message from an error response
// body, falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(body))
}
