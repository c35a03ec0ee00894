package liveagent

import (
	"errors"
	"fmt"
)

// Sentinel errors for backend calls.
var (
	// ErrBackendUnreachable indicates a transport-level failure before any
	// usable response was received.
	ErrBackendUnreachable = errors.New("liveagent: backend unreachable")

	// ErrMalformedResponse indicates the backend answered 200 but the payload
	// is missing required fields.
	ErrMalformedResponse = errors.New("liveagent: malformed response")

	// ErrSessionExpired indicates the backend no longer recognizes the
	// affinity/session-key pair (HTTP 403).
	ErrSessionExpired = errors.New("liveagent: session expired")
)

// APIError is a non-2xx response from the backend with the status code and
// whatever body text was readable.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("liveagent: backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("liveagent: backend returned %d: %s", e.StatusCode, e.Body)
}
