package elevenlabs

import (
	"errors"
	"fmt"
)

// Error represents an ElevenLabs API error.
type Error struct {
	// HTTPStatus is the HTTP status code.
	HTTPStatus int

	// Detail is the error detail from the response body.
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("elevenlabs: HTTP %d: %s", e.HTTPStatus, e.Detail)
}

// IsInvalidAPIKey returns true if this is an authentication error.
func (e *Error) IsInvalidAPIKey() bool {
	return e.HTTPStatus == 401
}

// IsRateLimit returns true if this is a rate limit error.
func (e *Error) IsRateLimit() bool {
	return e.HTTPStatus == 429
}

// Retryable returns true if the request can be retried.
func (e *Error) Retryable() bool {
	return e.IsRateLimit() || e.HTTPStatus >= 500
}

// AsError extracts *Error from an error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
