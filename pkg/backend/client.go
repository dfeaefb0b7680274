// Package backend talks to the analysis server over its /analyze, /health and
// /status endpoints.
package backend

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

	"github.com/menta2k/chart-qa/pkg/types"
)

const (
	// DefaultURL is the analysis server started by cmd/chart-qa-server
	DefaultURL = "http://localhost:5001"
	// HealthTimeout bounds a /health probe
	HealthTimeout = 3 * time.Second
	// AnalyzeTimeout bounds /analyze when the caller set no deadline
	AnalyzeTimeout = 5 * time.Minute
)

// ErrEmptyQuestion is returned before any request is made
var ErrEmptyQuestion = errors.New("question must not be empty")

// Client calls the analysis server. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at serverURL (DefaultURL when empty)
func NewClient(serverURL string) (*Client, error) {
	return NewClientWithHTTP(serverURL, &http.Client{})
}

// NewClientWithHTTP creates a client using a custom http.Client
func NewClientWithHTTP(serverURL string, hc *http.Client) (*Client, error) {
	if serverURL == "" {
		serverURL = DefaultURL
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", serverURL)
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		httpClient: hc,
	}, nil
}

// BaseURL returns the server URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Analyze sends a base64 image and a question and returns the answer.
// A response carrying an error field or a non-200 status wraps
// types.ErrBackend; transport failures are *types.NetworkError.
func (c *Client) Analyze(ctx context.Context, imgB64, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrEmptyQuestion
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, AnalyzeTimeout)
		defer cancel()
	}

	payload, err := json.Marshal(types.AnalyzeRequest{Image: imgB64, Question: question})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp types.AnalyzeResponse
	status, err := c.do(ctx, http.MethodPost, "/analyze", bytes.NewReader(payload), &resp)
	if err != nil {
		return "", err
	}

	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", types.ErrBackend, resp.Error)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d", types.ErrBackend, status)
	}
	if !resp.Success && resp.Answer == "" {
		return "", fmt.Errorf("%w: empty answer", types.ErrBackend)
	}
	return resp.Answer, nil
}

// Health probes /health, bounded by HealthTimeout
func (c *Client) Health(ctx context.Context) (*types.HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	var health types.HealthStatus
	status, err := c.do(ctx, http.MethodGet, "/health", nil, &health)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return &health, fmt.Errorf("%w: health HTTP %d", types.ErrBackend, status)
	}
	return &health, nil
}

// Status fetches /status
func (c *Client) Status(ctx context.Context) (*types.ServerStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	var st types.ServerStatus
	status, err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: status HTTP %d", types.ErrBackend, status)
	}
	return &st, nil
}

// do performs one request and decodes the JSON body into out.
// Bodies that are not JSON are only an error on 2xx responses.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) (int, error) {
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &types.NetworkError{Op: method, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, &types.NetworkError{Op: method, URL: endpoint, Err: err}
	}

	if err := json.Unmarshal(data, out); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("%w: invalid JSON from %s: %v", types.ErrBackend, path, err)
		}
	}
	return resp.StatusCode, nil
}
