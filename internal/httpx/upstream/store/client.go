package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "http://localhost:8081/api/v1"
	defaultTimeout = 15 * time.Second
)

// Client is a Conversation Store REST API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption is a function that configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithLogger sets the logger used for response normalization warnings
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a new Conversation Store client
func New(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// UserClient is a Client bound to one user's bearer credential
type UserClient struct {
	c           *Client
	accessToken string
}

// ForUser binds the client to an access token
func (c *Client) ForUser(accessToken string) *UserClient {
	return &UserClient{c: c, accessToken: accessToken}
}

// errorResponse is the error body returned by the store
type errorResponse struct {
	Error string `json:"error"`
}

// newRequest builds an authorized JSON request against the store
func (u *UserClient) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+u.accessToken)
	}

	return req, nil
}

// do executes an HTTP request and decodes the response.
// Every failure leaves here as a normalized *Error.
func (u *UserClient) do(req *http.Request, out interface{}) error {
	resp, err := u.c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Message: "executing request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindTransient, Status: resp.StatusCode, Message: "reading response body", Err: err}
	}

	if resp.StatusCode >= 400 {
		message := strings.TrimSpace(string(body))
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			message = errResp.Error
		}
		return &Error{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode, Message: message}
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return &Error{Kind: KindTransient, Status: resp.StatusCode, Message: "decoding response", Err: err}
		}
	}

	return nil
}

// Ping checks the store's /healthz, which lives at the root of the host
func (c *Client) Ping(ctx context.Context) error {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("parsing base url: %w", err)
	}
	target := base.ResolveReference(&url.URL{Path: "/healthz"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Message: "executing request", Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode, Message: "health check failed"}
	}
	return nil
}
