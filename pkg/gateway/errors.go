package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from the messaging API.
type APIError struct {
	StatusCode int
	Message    string
	Code       int
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("HTTP %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
	}

	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status signals throttling or a server fault.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable reports whether err carries a 429 or 5xx answer.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}

	return false
}

// StatusCode extracts the HTTP status of an APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}

	return 0
}
