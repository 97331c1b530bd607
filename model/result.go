package model

import (
	"fmt"
)

// FailureReason classifies why a set-pin request failed.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonNetworkError     FailureReason = "network-error"
	ReasonNon200Status     FailureReason = "non-200-status"
	ReasonInvalidPin       FailureReason = "invalid-pin"
	ReasonInvalidState     FailureReason = "invalid-state"
	ReasonEndpointNotFound FailureReason = "endpoint-not-found"
)

// SetResult is the outcome of a set-pin request.
type SetResult struct {
	Pin   PinID    `json:"pin"`
	State PinState `json:"state"`
	// Set on success
	OK bool `json:"ok"`
	// Failure classification (empty on success)
	Reason FailureReason `json:"reason,omitempty"`
	// Underlying error of the final attempt (nil on success)
	Err error `json:"-"`
	// Number of network requests made
	Attempts int `json:"attempts"`
}

// Success creates a successful result.
func Success(pin PinID, state PinState, attempts int) SetResult {
	return SetResult{Pin: pin, State: state, OK: true, Attempts: attempts}
}

// Failure creates a failed result.
func Failure(pin PinID, state PinState, reason FailureReason, err error, attempts int) SetResult {
	return SetResult{Pin: pin, State: state, Reason: reason, Err: err, Attempts: attempts}
}

// StatusCode returns the HTTP status code of the final attempt, if any.
func (r SetResult) StatusCode() int {
	if he, ok := AsHTTPError(r.Err); ok {
		return he.Code
	}
	return 0
}

// String returns a short human readable description of the outcome.
func (r SetResult) String() string {
	if r.OK {
		return fmt.Sprintf("%s set to %s", r.Pin, r.State)
	}
	switch r.Reason {
	case ReasonInvalidPin:
		return fmt.Sprintf("invalid pin '%s'", r.Pin)
	case ReasonInvalidState:
		return "state must be 'on' or 'off'"
	case ReasonEndpointNotFound:
		return fmt.Sprintf("device does not support setting %s (HTTP 404)", r.Pin)
	case ReasonNon200Status:
		return fmt.Sprintf("device returned HTTP %d for %s", r.StatusCode(), r.Pin)
	case ReasonNetworkError:
		return fmt.Sprintf("connection failed while setting %s: %v", r.Pin, errorText(r.Err))
	}
	return fmt.Sprintf("failed to set %s: %v", r.Pin, errorText(r.Err))
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
