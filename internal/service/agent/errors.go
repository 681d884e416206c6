package agent

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy for gateway and transcription failures. Callers match
// with errors.Is; the wrapped detail string carries the server-provided
// reason when one was returned.
var (
	ErrAuth        = errors.New("authentication failed")
	ErrValidation  = errors.New("invalid input")
	ErrNotFound    = errors.New("content not found")
	ErrTransport   = errors.New("agent unreachable")
	ErrUnsupported = errors.New("live speech recognition unsupported")
)

// classifyStatus maps an HTTP status to the taxonomy sentinel.
func classifyStatus(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrTransport
	}
}

// statusError wraps the sentinel for a status with the server detail,
// falling back to a generic message when the body carried none.
func statusError(status int, detail, fallback string) error {
	if detail == "" {
		detail = fallback
	}
	return fmt.Errorf("%w: %s", classifyStatus(status), detail)
}
