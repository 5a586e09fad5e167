// Package visibility decides which deliveries a caller may see and which
// actions each row offers.
package visibility

import (
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
)

// Viewer identifies who is looking.
type Viewer struct {
	ID   string
	Role domain.Role
}

// Radius bounds a courier's candidate feed.
type Radius struct {
	Center   geo.Point
	RadiusKm float64
}

// Action is a row-level command a viewer may trigger.
type Action string

// Row actions.
const (
	ActionAccept  Action = "accept"
	ActionPickUp  Action = "pick_up"
	ActionDeliver Action = "deliver"
)

// Owns reports whether the courier holds or completed d.
func Owns(courierID string, d domain.Delivery) bool {
	if d.AssignedTo != nil && *d.AssignedTo == courierID {
		return true
	}
	return d.DeliveredBy != nil && *d.DeliveredBy == courierID
}

// Visible reports whether v may observe d. A nil radius hides every
// posted candidate from couriers.
func Visible(v Viewer, d domain.Delivery, r *Radius) bool {
	switch v.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleBusiness:
		return d.BusinessID == v.ID
	case domain.RoleCourier:
		if Owns(v.ID, d) {
			return true
		}
		if d.Status != domain.StatusPosted || d.AssignedTo != nil || r == nil {
			return false
		}
		return geo.Within(r.Center, d.BusinessLocation, r.RadiusKm)
	default:
		return false
	}
}

// Filter keeps the deliveries v may observe, preserving order.
func Filter(v Viewer, list []domain.Delivery, r *Radius) []domain.Delivery {
	out := make([]domain.Delivery, 0, len(list))
	for _, d := range list {
		if Visible(v, d, r) {
			out = append(out, d)
		}
	}
	return out
}

// Actions lists what viewerID with role may do on a row.
func Actions(status domain.Status, assignedTo *string, viewerID string, role domain.Role) []Action {
	if role != domain.RoleCourier {
		return nil
	}
	mine := assignedTo != nil && *assignedTo == viewerID
	switch {
	case status == domain.StatusPosted && assignedTo == nil:
		return []Action{ActionAccept}
	case status == domain.StatusAccepted && mine:
		return []Action{ActionPickUp}
	case status == domain.StatusPickedUp && mine:
		return []Action{ActionDeliver}
	default:
		return nil
	}
}

// ActionsFor is Actions applied to a delivery.
func ActionsFor(v Viewer, d domain.Delivery) []Action {
	return Actions(d.Status, d.AssignedTo, v.ID, v.Role)
}

// ReadOnly reports whether role never changes delivery status.
func ReadOnly(role domain.Role) bool {
	return role != domain.RoleCourier
}
