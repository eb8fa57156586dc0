package girder

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotAuthenticated = errors.New("girder: not authenticated")
	ErrUploadIncomplete = errors.New("girder: upload did not produce a file")
)

// HTTPError is returned for every non-2xx response.
type HTTPError struct {
	Status  int
	Method  string
	Path    string
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("girder: %s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("girder: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// StatusOf returns the HTTP status of a wrapped *HTTPError, or 0.
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// IsForbidden reports whether err is a 401/403 from the server.
func IsForbidden(err error) bool {
	s := StatusOf(err)
	return s == http.StatusForbidden || s == http.StatusUnauthorized
}
