package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/terra-clan/challenge-tracker/internal/models"
)

// Client is a Go SDK for the challenge-tracker completion API
type Client struct {
	baseURL    string
	token      string
	csrfToken  string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithCSRFToken sends token in the X-CSRF-Token header
func WithCSRFToken(token string) Option {
	return func(c *Client) {
		c.csrfToken = token
	}
}

// NewClient creates a new client. An empty token makes anonymous requests.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ModernRequest completes a challenge with its source files
type ModernRequest struct {
	ID    string                 `json:"id"`
	Files map[string]models.File `json:"files"`
}

// ChallengeRequest completes a step, video or simple project
type ChallengeRequest struct {
	ID       string `json:"id"`
	Solution string `json:"solution,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// ProjectRequest completes a front-end or back-end project
type ProjectRequest struct {
	ID            string `json:"id"`
	ChallengeType int    `json:"challengeType"`
	Solution      string `json:"solution"`
	GithubLink    string `json:"githubLink,omitempty"`
}

// BackendRequest completes a back-end challenge
type BackendRequest struct {
	ID       string `json:"id"`
	Solution string `json:"solution"`
}

// CompletionResult is the server's answer to a completion
type CompletionResult struct {
	Points           int   `json:"points"`
	AlreadyCompleted bool  `json:"alreadyCompleted"`
	CompletedDate    int64 `json:"completedDate"`
	// Recorded is false when the server accepted the call without storing it
	// (no session or no user record).
	Recorded bool `json:"-"`
}

// APIError is a non-2xx response
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, string(e.Body))
}

// Retryable reports whether the failure is on the server side
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500
}

// CompleteModern posts to /modern-challenge-completed
func (c *Client) CompleteModern(ctx context.Context, req ModernRequest) (*CompletionResult, error) {
	return c.complete(ctx, "/modern-challenge-completed", req)
}

// CompleteChallenge posts to /challenge-completed
func (c *Client) CompleteChallenge(ctx context.Context, req ChallengeRequest) (*CompletionResult, error) {
	return c.complete(ctx, "/challenge-completed", req)
}

// CompleteProject posts to /project-completed
func (c *Client) CompleteProject(ctx context.Context, req ProjectRequest) (*CompletionResult, error) {
	return c.complete(ctx, "/project-completed", req)
}

// CompleteBackend posts to /backend-challenge-completed
func (c *Client) CompleteBackend(ctx context.Context, req BackendRequest) (*CompletionResult, error) {
	return c.complete(ctx, "/backend-challenge-completed", req)
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, "GET", "/health", nil)
	return err
}

func (c *Client) complete(ctx context.Context, path string, payload interface{}) (*CompletionResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, "POST", path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if string(bytes.TrimSpace(resp)) == "true" {
		return &CompletionResult{}, nil
	}

	var result CompletionResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	result.Recorded = true

	return &result, nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.csrfToken != "" {
		req.Header.Set("X-CSRF-Token", c.csrfToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: respBody}
	}

	return respBody, nil
}
