package leaveapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"leavedesk/internal/domain/leave"
)

// APIError is a non-2xx answer from the leave API. Message and Details come
// from the {error, details} body when the server sends one.
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	msg := e.ServerMessage()
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("leave api: status %d: %s", e.StatusCode, msg)
}

// ServerMessage joins the error and details fields so rule violations can be
// recognised by the caller.
func (e *APIError) ServerMessage() string {
	parts := make([]string, 0, 2)
	if m := strings.TrimSpace(e.Message); m != "" {
		parts = append(parts, m)
	}
	if d := strings.TrimSpace(e.Details); d != "" && d != strings.TrimSpace(e.Message) {
		parts = append(parts, d)
	}
	return strings.Join(parts, ": ")
}

func (e *APIError) Is(target error) bool {
	switch target {
	case leave.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case leave.ErrRequestNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}
