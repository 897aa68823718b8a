package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"

	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// Client wraps an authenticated HTTP client for a direct marketplace
// API. Response status codes are mapped onto the job error taxonomy so
// the dispatcher can classify failures without knowing HTTP.
type Client struct {
	http    *http.Client
	baseURL string
	logger  arbor.ILogger
}

// New creates an unauthenticated client for a marketplace base URL
func New(baseURL string, timeout time.Duration, logger arbor.ILogger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		logger:  logger,
	}
}

// NewWithToken creates a client whose requests carry the tenant's OAuth
// token. Refreshes are handled by the oauth2 transport.
func NewWithToken(ctx context.Context, baseURL string, timeout time.Duration, token *oauth2.Token, logger arbor.ILogger) *Client {
	c := New(baseURL, timeout, logger)
	authClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	authClient.Timeout = c.http.Timeout
	c.http = authClient
	return c
}

// Do executes one API call and returns the raw response body. body is
// JSON-encoded when non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode request body: %s", models.ErrInvalidInput, err.Error())
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidInput, err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s %s", models.ErrTimeout, method, path)
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: %s %s", models.ErrTimeout, method, path)
		}
		return nil, fmt.Errorf("%w: %s", models.ErrUpstreamFailure, err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %s", models.ErrUpstreamFailure, err.Error())
	}

	if err := ClassifyStatus(resp.StatusCode); err != nil {
		c.logger.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("Marketplace API call failed")
		return data, fmt.Errorf("%w (status %d)", err, resp.StatusCode)
	}
	return data, nil
}

// ClassifyStatus maps an HTTP status onto the error taxonomy. 2xx is
// success; 429 and 408 are retryable waits; other 4xx are caller bugs
// and never retried; 5xx is a transient upstream failure.
func ClassifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return models.ErrRateLimited
	case status == http.StatusRequestTimeout:
		return models.ErrTimeout
	case status >= 400 && status < 500:
		return models.ErrInvalidInput
	default:
		return models.ErrUpstreamFailure
	}
}
