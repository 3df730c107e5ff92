package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Sentinels matched by *Error through errors.Is.
var (
	ErrTransport    = errors.New("apiclient: transport failure")
	ErrUnauthorized = errors.New("apiclient: unauthorized")
	ErrForbidden    = errors.New("apiclient: forbidden")
	ErrNotFound     = errors.New("apiclient: not found")
)

// Error is returned for every failed call. Status is zero when no HTTP
// response was received.
type Error struct {
	Status  int
	Code    string
	Message string
	Details json.RawMessage
	TraceID string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Request failed"
	}
	switch {
	case e.Status > 0 && e.Code != "":
		return fmt.Sprintf("%s (status %d, code %s)", msg, e.Status, e.Code)
	case e.Status > 0:
		return fmt.Sprintf("%s (status %d)", msg, e.Status)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is maps the HTTP status onto the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Status == 0
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsStatus reports whether err carries the given HTTP status.
func IsStatus(err error, status int) bool {
	return status != 0 && StatusOf(err) == status
}

// Message returns the human readable message of err, falling back to fallback
// when err carries none.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
