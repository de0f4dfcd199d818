package ha

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRejected is returned when the backend refuses the access token.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrTimeout is returned when no response arrived within the deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrConnectionClosed is returned for requests outstanding when the
	// connection went away.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrNotConnected is returned when a call is attempted with no session.
	ErrNotConnected = errors.New("not connected")
)

// APIError is a backend-reported failure for a single request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %s", e.Code)
	}
	return fmt.Sprintf("api error %s: %s", e.Code, e.Message)
}
