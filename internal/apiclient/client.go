// Package apiclient calls the remote policy and license backend on behalf of
// a browser session.
package apiclient

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

	"go.uber.org/zap"
)

const maxBodyBytes = 10 << 20

var (
	// ErrUnauthorized is returned when the backend rejects the session credential
	ErrUnauthorized = errors.New("backend rejected credentials")

	// ErrInvalidBaseURL is returned when the configured base URL is not absolute
	ErrInvalidBaseURL = errors.New("invalid backend base URL")
)

// APIError is a non-2xx backend answer other than 401, kept verbatim.
type APIError struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, bytes.TrimSpace(e.Body))
}

// Credentials supplies the bearer token and clears it when the backend
// rejects it. session.Store implements it.
type Credentials interface {
	Token() string
	Logout(ctx context.Context) error
}

// Config holds configuration for Client
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Response is a successful backend answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client talks to the backend. Calls are made at most once; nothing is
// retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	creds      Credentials
}

// New creates an unbound Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// WithSession returns a copy of the client bound to creds.
func (c *Client) WithSession(creds Credentials) *Client {
	bound := *c
	bound.creds = creds
	return &bound
}

// Get decodes the JSON answer of GET path into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post sends in as JSON and decodes the answer into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

// Put sends in as JSON and decodes the answer into out.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPut, path, in, out)
}

// Delete issues DELETE path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do sends a JSON request. A nil out discards the answer body.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	resp, err := c.Forward(ctx, method, path, nil, body, contentType)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Forward sends body as is and returns the raw successful answer. A 401
// logs the bound session out and returns ErrUnauthorized; any other non-2xx
// answer is returned as *APIError.
func (c *Client) Forward(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*Response, error) {
	target := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create backend request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.creds != nil {
		if token := c.creds.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read backend response: %w", err)
	}

	c.logger.Debug("backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.dropSession(ctx)
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &APIError{
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        data,
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
	}, nil
}

// Ping reports whether the backend answers at all. Any status below 500
// counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create backend request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) dropSession(ctx context.Context) {
	if c.creds == nil {
		return
	}
	c.logger.Info("backend rejected session credential, logging out")
	if err := c.creds.Logout(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("failed to clear rejected session", zap.Error(err))
	}
}
