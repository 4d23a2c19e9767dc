package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client defaults.
const (
	DefaultClientTimeout = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryWait     = time.Second
)

// Errors classified from HTTP responses.
var (
	ErrUnauthorized = errors.New("approval token rejected")
	ErrForbidden    = errors.New("approval token not valid for this run")
	ErrConflict     = errors.New("run could not be approved")
	ErrServerError  = errors.New("approval server error")
)

// APIError is a non-success response from an approval server.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("approval API error (%d) at %s: %s", e.StatusCode, e.Endpoint, e.Message)
}

// Unwrap maps the status code onto a sentinel.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode == http.StatusConflict:
		return ErrConflict
	case e.StatusCode >= 500:
		return ErrServerError
	default:
		return nil
	}
}

// Client posts approvals to a remote HTTPSource. Transport failures and
// 5xx responses are retried with exponential backoff.
type Client struct {
	http       *http.Client
	baseURL    string
	token      string
	maxRetries uint64
	retryWait  time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithRetries sets the retry count and the initial wait between attempts.
func WithRetries(n uint64, wait time.Duration) ClientOption {
	return func(cl *Client) {
		cl.maxRetries = n
		if wait > 0 {
			cl.retryWait = wait
		}
	}
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		http:       &http.Client{Timeout: DefaultClientTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		maxRetries: DefaultMaxRetries,
		retryWait:  DefaultRetryWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Approve asks the server to approve runID and returns the recorded signal.
func (c *Client) Approve(ctx context.Context, runID string) (Signal, error) {
	endpoint := strings.Replace(ApprovePath, "{runID}", url.PathEscape(runID), 1)

	var sig Signal
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("approval request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body), Endpoint: endpoint}
			if resp.StatusCode >= 500 {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		if err := json.Unmarshal(body, &sig); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryWait
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)); err != nil {
		return Signal{}, err
	}
	return sig, nil
}

func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		return eb.Error
	}
	return strings.TrimSpace(string(body))
}
