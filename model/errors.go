package model

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ValidationError        = errors.New("validation failed")
	InvalidPinError        = errors.New("invalid pin")
	InvalidStateError      = errors.New("invalid state")
	NetworkError           = errors.New("network error")
	MalformedResponseError = errors.New("malformed response")
	maskAny                = errors.WithStack
)

// HTTPError is returned when a reachable device answers with
// an unexpected HTTP status code.
type HTTPError struct {
	Code int
	Body string
}

// Error implements error.
func (e HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// IsInvalidPin returns true if the cause of the given error is InvalidPinError.
func IsInvalidPin(err error) bool {
	return errors.Cause(err) == InvalidPinError
}

// IsInvalidState returns true if the cause of the given error is InvalidStateError.
func IsInvalidState(err error) bool {
	return errors.Cause(err) == InvalidStateError
}

// IsNetwork returns true if the cause of the given error is NetworkError.
func IsNetwork(err error) bool {
	return errors.Cause(err) == NetworkError
}

// IsMalformed returns true if the cause of the given error is MalformedResponseError.
func IsMalformed(err error) bool {
	return errors.Cause(err) == MalformedResponseError
}

// AsHTTPError returns the HTTPError at the cause of the given error.
// Returns false if the cause is not an HTTPError.
func AsHTTPError(err error) (HTTPError, bool) {
	switch e := errors.Cause(err).(type) {
	case HTTPError:
		return e, true
	case *HTTPError:
		return *e, true
	}
	return HTTPError{}, false
}
