package robots

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound is matched (via errors.Is) by a RequestFailedError whose status is 404.
var ErrNotFound = errors.New("robot not found")

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 4 << 10

// ValidationError reports a field that failed local checks before any request was sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NetworkUnavailableError reports that no response was received: the
// connection failed, was reset, or the caller's context expired.
type NetworkUnavailableError struct {
	Cause error
}

func (e *NetworkUnavailableError) Error() string {
	return fmt.Sprintf("network unavailable: %v", e.Cause)
}

func (e *NetworkUnavailableError) Unwrap() error { return e.Cause }

// RequestFailedError reports a response with a non-2xx status.
type RequestFailedError struct {
	Status int
	Body   string
}

func (e *RequestFailedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Body)
}

// Is makes errors.Is(err, ErrNotFound) true for 404 responses.
func (e *RequestFailedError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// DecodeError reports a response body that could not be parsed as the expected shape.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response: %v", e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// IsNotFound reports whether err is, or wraps, a 404 response.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func newRequestFailed(status int, body []byte) *RequestFailedError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &RequestFailedError{
		Status: status,
		Body:   strings.TrimSpace(string(body)),
	}
}
