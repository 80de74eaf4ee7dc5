package robots

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultUserAgent is sent when WithUserAgent is not used.
const DefaultUserAgent = "robots-go/1.0"

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a backend's /robots endpoints. It holds no mutable state
// and is safe for concurrent use. It applies no timeout of its own: deadlines
// and cancellation come from the context passed to each call.
type Client struct {
	base      string
	http      Doer
	logger    *slog.Logger
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the transport used for every request.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		if d != nil {
			c.http = d
		}
	}
}

// WithLogger sets the logger used for per-request debug lines and payload warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New creates a Client for the backend at baseURL (e.g. "http://localhost:8082").
// A path prefix is kept: "http://host/api" targets "http://host/api/robots".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be an absolute http or https URL", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""

	c := &Client{
		base:      u.String(),
		http:      &http.Client{},
		logger:    slog.New(slog.DiscardHandler),
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized base address.
func (c *Client) BaseURL() string { return c.base }

// ListRobots fetches GET /robots and returns the robots in server order.
//
// A response that is valid JSON but not an array is treated as an empty list
// and logged as a warning; it is not an error.
func (c *Client) ListRobots(ctx context.Context) ([]Robot, error) {
	body, err := c.do(ctx, http.MethodGet, "", nil)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &DecodeError{Cause: err}
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		c.logger.WarnContext(ctx, "robot list payload is not an array, treating as empty",
			"payload", preview(raw),
		)
		return []Robot{}, nil
	}

	robots := []Robot{}
	if err := json.Unmarshal(raw, &robots); err != nil {
		return nil, &DecodeError{Cause: err}
	}
	return robots, nil
}

// GetRobot fetches GET /robots/{id}.
func (c *Client) GetRobot(ctx context.Context, id ID) (Robot, error) {
	if err := checkID(id); err != nil {
		return Robot{}, err
	}
	body, err := c.do(ctx, http.MethodGet, id, nil)
	if err != nil {
		return Robot{}, err
	}
	return decodeRobot(body, id)
}

// FindRobotByName lists the collection and returns the first robot whose
// name matches, ignoring surrounding whitespace. It fails with ErrNotFound
// when nothing matches. Names are not unique keys: a rename through
// UpdateRobot changes what this finds.
func (c *Client) FindRobotByName(ctx context.Context, name string) (Robot, error) {
	want := strings.TrimSpace(name)
	if want == "" {
		return Robot{}, &ValidationError{Field: "name", Reason: reason("notblank")}
	}
	all, err := c.ListRobots(ctx)
	if err != nil {
		return Robot{}, err
	}
	for _, r := range all {
		if strings.TrimSpace(r.Name) == want {
			return r, nil
		}
	}
	return Robot{}, fmt.Errorf("no robot named %q: %w", want, ErrNotFound)
}

// CreateRobot validates the draft and sends POST /robots. Nothing is sent
// when validation fails.
func (c *Client) CreateRobot(ctx context.Context, draft Draft) (Robot, error) {
	if err := draft.Validate(); err != nil {
		return Robot{}, err
	}
	body, err := c.do(ctx, http.MethodPost, "", draft)
	if err != nil {
		return Robot{}, err
	}
	created, err := decodeRobot(body, "")
	if err != nil {
		return Robot{}, err
	}
	if created.ID == "" {
		return Robot{}, &DecodeError{Cause: errors.New("created robot has no id")}
	}
	return created, nil
}

// UpdateRobot validates the fields present in patch and sends PUT /robots/{id}
// with the id and those fields only.
func (c *Client) UpdateRobot(ctx context.Context, id ID, patch Patch) (Robot, error) {
	if err := checkID(id); err != nil {
		return Robot{}, err
	}
	if err := patch.Validate(); err != nil {
		return Robot{}, err
	}
	payload := struct {
		ID ID `json:"id"`
		Patch
	}{ID: id, Patch: patch}

	body, err := c.do(ctx, http.MethodPut, id, payload)
	if err != nil {
		return Robot{}, err
	}
	return decodeRobot(body, id)
}

// DeleteRobot sends DELETE /robots/{id}. Any 2xx status is success. A
// repeated delete reports ErrNotFound when the backend answers 404; it is
// never turned into a silent success.
func (c *Client) DeleteRobot(ctx context.Context, id ID) error {
	if err := checkID(id); err != nil {
		return err
	}
	_, err := c.do(ctx, http.MethodDelete, id, nil)
	return err
}

func (c *Client) endpoint(id ID) string {
	u := c.base + "/robots"
	if id != "" {
		u += "/" + url.PathEscape(string(id))
	}
	return u
}

// do sends one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method string, id ID, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(id), reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "robots request failed",
			"method", method,
			"url", req.URL.String(),
			"request_id", requestID,
			"err", err,
		)
		return nil, &NetworkUnavailableError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkUnavailableError{Cause: fmt.Errorf("reading response body: %w", err)}
	}

	c.logger.DebugContext(ctx, "robots request",
		"method", method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", requestID,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newRequestFailed(resp.StatusCode, body)
	}
	return body, nil
}

// decodeRobot parses a single robot object. When the backend omits the id,
// the requested one is filled in.
func decodeRobot(body []byte, requested ID) (Robot, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Robot{}, &DecodeError{Cause: errors.New("empty response body")}
	}
	if trimmed[0] != '{' {
		return Robot{}, &DecodeError{Cause: fmt.Errorf("expected a JSON object, got %s", preview(trimmed))}
	}
	var r Robot
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return Robot{}, &DecodeError{Cause: err}
	}
	if r.ID == "" {
		r.ID = requested
	}
	return r, nil
}

func checkID(id ID) error {
	if strings.TrimSpace(string(id)) == "" {
		return &ValidationError{Field: "id", Reason: reason("required")}
	}
	return nil
}

func preview(b []byte) string {
	const limit = 64
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
