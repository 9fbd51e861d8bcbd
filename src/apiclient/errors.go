package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Common error variables
var (
	// ErrNoAPIKey indicates the API key is missing.
	ErrNoAPIKey = errors.New("API key is required")

	// ErrConnection indicates the endpoint could not be reached or refused
	// the exchange. It wraps a user-correctable failure.
	ErrConnection = errors.New("connection failed")

	// ErrStreamClosed indicates the stream has been closed.
	ErrStreamClosed = errors.New("stream closed")

	// ErrEmptyResponse indicates the API returned no usable content.
	ErrEmptyResponse = errors.New("empty response from API")
)

// APIError represents an error response from the chat-completion endpoint.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	Code       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// Is lets callers match any APIError against ErrConnection.
func (e *APIError) Is(target error) bool {
	return target == ErrConnection
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Code == "invalid_api_key"
}

// IsRateLimit returns true if this is a rate limit error.
func (e *APIError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == "rate_limit_exceeded"
}

// IsRetryable returns true if the error is worth retrying.
func (e *APIError) IsRetryable() bool {
	if e.StatusCode >= 500 && e.StatusCode < 600 {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests
}

// Suggestion returns a short, user-correctable hint for the failure.
func (e *APIError) Suggestion() string {
	switch {
	case e.IsAuthError():
		return "check your API key"
	case e.IsRateLimit():
		return "rate limited; wait a moment and retry"
	case e.StatusCode == http.StatusNotFound:
		return "check the endpoint URL and model name"
	case e.IsRetryable():
		return "the server is having trouble; retry shortly"
	default:
		return "check your endpoint configuration"
	}
}

// ConnectionError wraps a transport-level failure (DNS, TCP, TLS) with a hint
// about the likely cause.
type ConnectionError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach %s: %v (check the URL, your network, and the TLS-verify setting)", e.Endpoint, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is lets callers match against ErrConnection.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}
