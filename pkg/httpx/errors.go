package httpx

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError reports a non-2xx response. Snippet holds at most the first 512
// bytes of the body.
type HTTPError struct {
	URL        string
	Status     int
	StatusText string
	Snippet    string
	Header     http.Header
}

func (e *HTTPError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("httpx: GET %s: %d %s", e.URL, e.Status, e.StatusText)
	}
	return fmt.Sprintf("httpx: GET %s: %d %s: %s", e.URL, e.Status, e.StatusText, e.Snippet)
}

// TransportError reports a failure below HTTP: DNS, connection reset, timeout.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("httpx: GET %s: transport: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusOf returns the HTTP status carried by err, or 0 when err is not an HTTPError.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	return StatusOf(err) == status
}

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
