package domain

import "time"

// EventKind names a delivery change.
type EventKind string

// Delivery change kinds.
const (
	EventCreated   EventKind = "created"
	EventAccepted  EventKind = "accepted"
	EventPickedUp  EventKind = "picked_up"
	EventDelivered EventKind = "delivered"
)

// EventKindFor returns the change kind that produced status s.
func EventKindFor(s Status) EventKind {
	switch s {
	case StatusAccepted:
		return EventAccepted
	case StatusPickedUp:
		return EventPickedUp
	case StatusDelivered:
		return EventDelivered
	default:
		return EventCreated
	}
}

// DeliveryEvent carries the full delivery state after a change.
type DeliveryEvent struct {
	Kind       EventKind
	Delivery   Delivery
	OccurredAt time.Time
}
