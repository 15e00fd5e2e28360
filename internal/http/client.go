// Package http sends JSON requests to the collection endpoint.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teracrafts/posthog-go/errors"
	"github.com/teracrafts/posthog-go/types"
)

// maxErrorBody bounds how much of an error response is kept for messages.
const maxErrorBody = 512

// Client posts JSON bodies to a host. There is no retry loop: a failed
// request is reported to the caller, which keeps its data for a later
// attempt.
type Client struct {
	host      string
	userAgent string
	client    *http.Client
	breaker   *CircuitBreaker
	logger    types.Logger
}

// ClientConfig contains HTTP client configuration.
type ClientConfig struct {
	Host      string
	UserAgent string
	Timeout   time.Duration
	Breaker   *BreakerConfig
	Logger    types.Logger

	// HTTPClient replaces the default client. Its Timeout is left as is.
	HTTPClient *http.Client
}

// Response is a successful (2xx) response.
type Response struct {
	StatusCode int
	Body       []byte
}

// NewClient creates a new HTTP client.
func NewClient(config *ClientConfig) *Client {
	logger := config.Logger
	if logger == nil {
		logger = &types.NullLogger{}
	}
	hc := config.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: config.Timeout}
	}
	return &Client{
		host:      strings.TrimRight(config.Host, "/"),
		userAgent: config.UserAgent,
		client:    hc,
		breaker:   NewCircuitBreaker(config.Breaker, logger),
		logger:    logger,
	}
}

// PostJSON encodes body as JSON and posts it to host+path. Any non-2xx
// status is returned as an HTTP_STATUS error.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	if !c.breaker.Allow() {
		return nil, errors.NewError(errors.ErrCircuitOpen, "circuit breaker is open")
	}

	resp, err := c.do(ctx, path, body)
	switch {
	case err == nil:
		c.breaker.RecordSuccess()
	case countsAsOutage(err):
		c.breaker.RecordFailure()
	default:
		c.breaker.RecordSuccess()
	}
	return resp, err
}

// Breaker returns the client's circuit breaker.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, path string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrInvalidValue, "failed to encode request body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrNetwork, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrNetwork, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewErrorWithCause(errors.ErrNetwork, "failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("Request rejected", "path", path, "status", resp.StatusCode)
		return nil, statusError(resp.StatusCode, respBody)
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

func statusError(status int, body []byte) *errors.Error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return errors.StatusError(status, fmt.Sprintf("HTTP %d: %s", status, msg))
}

// countsAsOutage reports whether err says the server is unreachable or
// failing, as opposed to rejecting this particular request.
func countsAsOutage(err error) bool {
	e, ok := err.(*errors.Error)
	if !ok {
		return true
	}
	switch e.Code {
	case errors.ErrNetwork:
		return true
	case errors.ErrHTTPStatus:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}
