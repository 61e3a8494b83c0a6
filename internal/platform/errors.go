package platform

import (
	"errors"
	"fmt"
)

// Common platform API errors
var (
	// ErrMalformedRecord is returned when a wire record fails boundary
	// validation (missing id, unparseable amount or date).
	ErrMalformedRecord = errors.New("malformed platform record")

	// ErrRateLimited is returned when the platform keeps throttling past
	// the retry attempt ceiling.
	ErrRateLimited = errors.New("platform rate limit not clearing")

	// ErrPaginationLoop is returned when a sub-query keeps handing back
	// cursors without producing unseen records.
	ErrPaginationLoop = errors.New("pagination loop detected")

	// ErrNoStrategies is returned when a fetch completes with every
	// sub-query failed, so the merged result cannot be trusted at all.
	ErrNoStrategies = errors.New("all fetch strategies failed")
)

// APIError wraps an HTTP-level failure from the platform API.
type APIError struct {
	// Op is the operation that failed (e.g., "QueryTransactions").
	Op string

	// StatusCode is the HTTP status returned by the platform.
	StatusCode int

	// Body is a truncated copy of the response body, for diagnostics.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("platform: %s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Retryable reports whether the failure is worth retrying under backoff.
// 429 and server-side errors are transient; other 4xx are not.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// IsThrottle reports whether the platform asked us to slow down.
func (e *APIError) IsThrottle() bool {
	return e.StatusCode == 429
}
