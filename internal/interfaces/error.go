// Package interfaces defines shared types exchanged between the API layer,
// the translation pipeline, and the backend client.
package interfaces

import "net/http"

// ErrorMessage carries an error together with the HTTP status it should be
// surfaced with. Addon optionally holds upstream response headers that
// should accompany the error (e.g. Retry-After).
type ErrorMessage struct {
	// StatusCode is the HTTP status code to return to the client.
	StatusCode int

	// Error is the underlying error.
	Error error

	// Addon contains optional headers to attach to the error response.
	Addon http.Header
}
