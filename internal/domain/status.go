package domain

import (
	"fmt"
	"strings"

	"courier-dispatch/internal/apperr"
)

// Status is a delivery lifecycle state.
type Status string

// Delivery statuses in lifecycle order.
const (
	StatusPosted    Status = "posted"
	StatusAccepted  Status = "accepted"
	StatusPickedUp  Status = "picked_up"
	StatusDelivered Status = "delivered"
)

// next holds the single allowed successor of each non-terminal status.
var next = map[Status]Status{
	StatusPosted:   StatusAccepted,
	StatusAccepted: StatusPickedUp,
	StatusPickedUp: StatusDelivered,
}

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPosted, StatusAccepted, StatusPickedUp, StatusDelivered}
}

// Valid checks if the Status is known.
func (s Status) Valid() bool {
	_, ok := next[s]
	return ok || s == StatusDelivered
}

// Next returns the successor of s; ok is false for terminal or unknown statuses.
func (s Status) Next() (Status, bool) {
	n, ok := next[s]
	return n, ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool { return s == StatusDelivered }

// Active reports whether a courier currently holds the delivery.
func (s Status) Active() bool { return s == StatusAccepted || s == StatusPickedUp }

// CanTransition reports whether from -> to is a legal single step.
func CanTransition(from, to Status) bool {
	n, ok := next[from]
	return ok && n == to
}

// ParseStatus parses a wire status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", apperr.Invalid("status", fmt.Sprintf("unknown status %q", raw))
	}
	return s, nil
}
