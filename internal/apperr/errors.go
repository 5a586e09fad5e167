package apperr

import (
	"errors"
	"fmt"
)

// ErrInvalid is returned when the input fails domain validation.
var ErrInvalid = errors.New("invalid input")

// ErrConflict indicates a uniqueness or state conflict (HTTP 409).
var ErrConflict = errors.New("conflict")

// ErrNotFound indicates that the requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized means the caller has no valid credential.
var ErrUnauthorized = errors.New("unauthorized")

// ErrForbidden means the caller is known but not allowed to perform the action.
var ErrForbidden = errors.New("forbidden")

// ErrRaceLost is returned when another courier already claimed the delivery.
var ErrRaceLost = errors.New("delivery already taken")

// ErrStaleState is returned when a transition is no longer valid for the current status.
var ErrStaleState = errors.New("delivery state changed")

// ValidationError points at the offending input field.
type ValidationError struct {
	Field  string
	Reason string
}

// Invalid returns a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap makes errors.Is(err, ErrInvalid) hold for every ValidationError.
func (e *ValidationError) Unwrap() error { return ErrInvalid }
