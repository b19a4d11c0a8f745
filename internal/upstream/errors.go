package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx response from an upstream service.
type StatusError struct {
	Service string
	Path    string
	Status  int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: %s %s returned %d: %s", e.Service, e.Path, e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from an upstream.
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsBadRequest reports whether err is a 400 from an upstream.
func IsBadRequest(err error) bool {
	return hasStatus(err, http.StatusBadRequest)
}

// NotFoundFrom reports whether err is a 404 raised by the named service.
func NotFoundFrom(err error, service string) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound && se.Service == service
}

func hasStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}
