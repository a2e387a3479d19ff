package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a provider-reported failure carrying an HTTP-status-like code.
// The orchestrator uses the classification for user-facing messaging only.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("provider: %s (status %d)", http.StatusText(e.StatusCode), e.StatusCode)
}

// Retryable reports whether retrying the same call could plausibly succeed.
// Timeouts, 5xx and 429 qualify; any other 4xx does not.
func (e *APIError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// IsRetryable classifies an error from a provider call attempt. Transport
// failures are retryable; a caller-initiated cancellation is not.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}

// IsRejected reports whether the provider definitively rejected the request,
// as opposed to failing transiently.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && !apiErr.Retryable()
}
