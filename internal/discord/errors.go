package discord

import (
	"errors"
	"fmt"
	"time"
)

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Status  int
	Code    int    `json:"code"`
	Message string `json:"message"`
	Method  string
	Path    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("discord: %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("discord: %s %s: status %d: %s (code %d)", e.Method, e.Path, e.Status, e.Message, e.Code)
}

// RateLimitError is returned for 429 responses. Requests are not retried.
type RateLimitError struct {
	APIError
	RetryAfter time.Duration
	Global     bool
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("discord: %s %s: rate limited, retry after %s (global=%t)", e.Method, e.Path, e.RetryAfter, e.Global)
}

func (e *RateLimitError) Unwrap() error {
	return &e.APIError
}

// ErrFatalClose is returned by Gateway.Run when Discord closes the session
// with a code that must not be retried (bad token, disallowed intents).
var ErrFatalClose = errors.New("discord: gateway closed with fatal code")

// ErrMissingToken is returned when a client is built without a bot token.
var ErrMissingToken = errors.New("discord: bot token is empty")

// ErrImageTooLarge is returned when a cover exceeds the upload size limit.
var ErrImageTooLarge = errors.New("discord: image exceeds 10 MiB")
