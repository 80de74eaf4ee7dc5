// Package client provides an HTTP client for the robot backend's /admin/* endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Fault mirrors the backend's fault configuration.
type Fault struct {
	StatusCode int     `json:"status_code"`
	Body       string  `json:"body,omitempty"`
	DelayMS    int     `json:"delay_ms,omitempty"`
	Rate       float64 `json:"rate,omitempty"`
}

// AdminClient talks to a backend's /admin/* endpoints.
type AdminClient struct {
	base string
	http *http.Client
}

// New creates an AdminClient for the backend at baseURL with a 5-second timeout.
func New(baseURL string) *AdminClient {
	return &AdminClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// Health checks GET /admin/health. Returns (ok, response body or error message).
func (c *AdminClient) Health(ctx context.Context) (bool, string) {
	status, body, err := c.do(ctx, http.MethodGet, "/admin/health", nil)
	if err != nil {
		return false, err.Error()
	}
	if status == http.StatusOK {
		return true, body
	}
	return false, fmt.Sprintf("status %d: %s", status, body)
}

// Reset calls POST /admin/reset.
func (c *AdminClient) Reset(ctx context.Context) (string, error) {
	return c.expectOK(ctx, "reset", http.MethodPost, "/admin/reset", nil)
}

// Seed POSTs the contents of a JSON state file to /admin/state.
func (c *AdminClient) Seed(ctx context.Context, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("reading seed file: %w", err)
	}
	return c.LoadState(ctx, data)
}

// LoadState POSTs raw JSON state to /admin/state, replacing every robot.
func (c *AdminClient) LoadState(ctx context.Context, data []byte) (string, error) {
	return c.expectOK(ctx, "seed", http.MethodPost, "/admin/state", data)
}

// InjectFault registers a fault for path (e.g. "/robots" or "/robots/*").
func (c *AdminClient) InjectFault(ctx context.Context, path string, f Fault) (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encoding fault: %w", err)
	}
	return c.expectOK(ctx, "inject fault", http.MethodPost, faultPath(path), data)
}

// RemoveFault removes the fault registered for path.
func (c *AdminClient) RemoveFault(ctx context.Context, path string) (string, error) {
	return c.expectOK(ctx, "remove fault", http.MethodDelete, faultPath(path), nil)
}

func faultPath(path string) string {
	return "/admin/fault/" + strings.TrimPrefix(path, "/")
}

func (c *AdminClient) expectOK(ctx context.Context, op, method, path string, data []byte) (string, error) {
	status, body, err := c.do(ctx, method, path, data)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%s failed (status %d): %s", op, status, body)
	}
	return body, nil
}

func (c *AdminClient) do(ctx context.Context, method, path string, data []byte) (int, string, error) {
	var reqBody io.Reader
	if data != nil {
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(body)), nil
}
