// Package testutil provides an in-process robot backend, a raw HTTP client
// with assertion helpers, and transport wrappers for tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/retreat896/MobileDev-Assignment02/internal/server"
	"github.com/retreat896/MobileDev-Assignment02/internal/store"
)

// Backend is an in-memory robot backend running on an httptest.Server.
type Backend struct {
	Server *server.Server
	HTTP   *httptest.Server
	Repo   *store.Memory
	Client *Client
}

// NewBackend starts a backend for the duration of the test.
func NewBackend(t *testing.T) *Backend {
	t.Helper()
	repo := store.NewMemory()
	srv := server.New(&server.Config{}, repo, nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &Backend{
		Server: srv,
		HTTP:   ts,
		Repo:   repo,
		Client: NewClient(t, ts.URL),
	}
}

// URL returns the backend's base URL.
func (b *Backend) URL() string { return b.HTTP.URL }

// Client is an HTTP client for poking a backend directly in tests.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	t          *testing.T
}

// NewClient creates a client pointed at baseURL.
func NewClient(t *testing.T, baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		t:          t,
	}
}

// Response wraps an HTTP response with helper methods.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	t          *testing.T
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) {
	r.t.Helper()
	if err := json.Unmarshal(r.Body, v); err != nil {
		r.t.Fatalf("failed to unmarshal response: %v\nbody: %s", err, string(r.Body))
	}
}

// JSONMap returns the response body as a map.
func (r *Response) JSONMap() map[string]any {
	r.t.Helper()
	var m map[string]any
	r.JSON(&m)
	return m
}

// AssertStatus asserts the response has the expected status code.
func (r *Response) AssertStatus(expected int) *Response {
	r.t.Helper()
	if r.StatusCode != expected {
		r.t.Errorf("expected status %d, got %d\nbody: %s", expected, r.StatusCode, string(r.Body))
	}
	return r
}

// AssertBodyContains asserts the response body contains the given substring.
func (r *Response) AssertBodyContains(substr string) *Response {
	r.t.Helper()
	if !strings.Contains(string(r.Body), substr) {
		r.t.Errorf("expected body to contain %q, got: %s", substr, string(r.Body))
	}
	return r
}

// Get performs a GET request.
func (c *Client) Get(path string) *Response {
	c.t.Helper()
	return c.Do(http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(path string, body any) *Response {
	c.t.Helper()
	return c.Do(http.MethodPost, path, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(path string, body any) *Response {
	c.t.Helper()
	return c.Do(http.MethodPut, path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(path string) *Response {
	c.t.Helper()
	return c.Do(http.MethodDelete, path, nil)
}

// Do sends a request. A string or []byte body is sent verbatim; anything
// else non-nil is JSON encoded.
func (c *Client) Do(method, path string, body any) *Response {
	c.t.Helper()

	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		bodyReader = strings.NewReader(b)
	case []byte:
		bodyReader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			c.t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		c.t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatalf("failed to read response: %v", err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Headers:    resp.Header,
		t:          c.t,
	}
}

// InjectFault calls POST /admin/fault/{endpoint}.
func (c *Client) InjectFault(endpoint string, fault server.FaultConfig) *Response {
	c.t.Helper()
	return c.Post("/admin/fault/"+strings.TrimPrefix(endpoint, "/"), fault)
}

// Reset calls POST /admin/reset.
func (c *Client) Reset() *Response {
	c.t.Helper()
	return c.Post("/admin/reset", nil)
}

// CountingTransport counts round trips before handing them to Next
// (http.DefaultTransport when nil).
type CountingTransport struct {
	Next  http.RoundTripper
	calls atomic.Int64
}

// RoundTrip implements http.RoundTripper.
func (c *CountingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	next := c.Next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req)
}

// Calls returns the number of requests seen so far.
func (c *CountingTransport) Calls() int {
	return int(c.calls.Load())
}

// CountingClient returns an *http.Client that records every request in ct.
func CountingClient(ct *CountingTransport) *http.Client {
	return &http.Client{Transport: ct}
}
