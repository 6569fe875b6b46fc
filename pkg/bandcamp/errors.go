package bandcamp

import (
	"errors"
	"fmt"
)

// Error represents a non-success HTTP response from Bandcamp.
//
// The Error type provides the status code and the requested URL. It
// implements error, and provides additional methods for retry logic.
type Error struct {
	StatusCode int    // HTTP status code
	URL        string // Requested URL
	Message    string // Status text or extra detail
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("bandcamp: status %d: %s (%s)", e.StatusCode, e.Message, e.URL)
}

// Is checks if the target error is a Bandcamp error with the same status.
//
// This allows errors.Is() to work with *Error types.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.StatusCode == t.StatusCode
}

// Temporary returns true if the error is temporary and the request
// should be retried.
//
// Server errors (5xx) and 429 Too Many Requests are considered temporary.
func (e *Error) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// Predefined errors for common cases.
var (
	// ErrInvalidConfig is returned when client configuration is invalid.
	ErrInvalidConfig = errors.New("bandcamp: invalid configuration")

	// ErrNoAlbumData is returned when an album page carries no embedded
	// album JSON.
	ErrNoAlbumData = errors.New("bandcamp: no album data in page")

	// ErrNoDiscoverData is returned when the discover page carries no
	// DiscoverApp data blob.
	ErrNoDiscoverData = errors.New("bandcamp: no DiscoverApp data in page")

	// ErrNotFound matches any 404 response.
	ErrNotFound = &Error{StatusCode: 404}
)

// IsTemporary reports whether err wraps a temporary Bandcamp error.
func IsTemporary(err error) bool {
	var bcErr *Error
	if errors.As(err, &bcErr) {
		return bcErr.Temporary()
	}
	return false
}
