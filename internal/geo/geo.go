// Package geo resolves network addresses to the country (and city) they are located in.
package geo

import (
	"context"
	"fmt"
	"net/http"
)

// Record is the geolocation of one address
type Record struct {
	Country string // two-letter country code, upper-case
	City    string // may be empty
}

// Locator looks up the geolocation of an address in an external source
type Locator interface {
	Lookup(ctx context.Context, addr string) (Record, error)
}

// Error represents a structured error from a geolocation backend
type Error struct {
	StatusCode int
	Retriable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("geolocation error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("geolocation error: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// isRetriableStatusCode reports whether a later lookup may succeed
func isRetriableStatusCode(statusCode int) bool {
	return statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout ||
		statusCode >= 500
}
