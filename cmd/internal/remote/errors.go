package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnexpectedStatus is the kind wrapped by every StatusError.
var ErrUnexpectedStatus = errors.New("remote: unexpected status")

// StatusError reports a response whose status was not the operation's success status.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %v %d (%s)", e.Op, ErrUnexpectedStatus, e.Status, http.StatusText(e.Status))
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// IsStatus reports whether err carries the given response status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// StatusOf returns the response status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
