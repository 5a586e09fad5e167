package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/geo"
)

const maxItemLen = 200

// Delivery is a business's request to move an item to a destination.
type Delivery struct {
	ID                  uuid.UUID
	BusinessID          string
	BusinessName        string
	BusinessAddress     string
	BusinessLocation    geo.Point
	DestinationAddress  string
	DestinationLocation geo.Point
	Item                string
	Payment             float64
	Status              Status
	AssignedTo          *string
	DeliveredBy         *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	AcceptedAt          *time.Time
	PickedUpAt          *time.Time
	DeliveredAt         *time.Time
}

// NewDeliveryParams carries the creation-time snapshot of a delivery.
type NewDeliveryParams struct {
	ID                  uuid.UUID
	Business            BusinessAccount
	DestinationAddress  string
	DestinationLocation geo.Point
	Item                string
	Payment             float64
	CreatedAt           time.Time
}

// NewDelivery validates p and returns a posted delivery.
func NewDelivery(p NewDeliveryParams) (Delivery, error) {
	item := strings.TrimSpace(p.Item)
	switch {
	case item == "":
		return Delivery{}, apperr.Invalid("item", "required")
	case utf8.RuneCountInString(item) > maxItemLen:
		return Delivery{}, apperr.Invalid("item", fmt.Sprintf("at most %d characters", maxItemLen))
	case !p.DestinationLocation.Valid() || p.DestinationLocation == (geo.Point{}):
		return Delivery{}, apperr.Invalid("destination_location", "destination is not resolved to coordinates")
	case !p.Business.Location.Valid() || p.Business.Location == (geo.Point{}):
		return Delivery{}, apperr.Invalid("business_location", "business profile has no location")
	case p.Payment < 0:
		return Delivery{}, apperr.Invalid("payment", "must be non-negative")
	}

	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return Delivery{
		ID:                  id,
		BusinessID:          p.Business.ID,
		BusinessName:        p.Business.Name,
		BusinessAddress:     p.Business.Address,
		BusinessLocation:    p.Business.Location,
		DestinationAddress:  strings.TrimSpace(p.DestinationAddress),
		DestinationLocation: p.DestinationLocation,
		Item:                item,
		Payment:             p.Payment,
		Status:              StatusPosted,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.CreatedAt,
	}, nil
}

// Accept claims a posted delivery for courierID.
// Any other status means somebody else got there first.
func (d Delivery) Accept(courierID string, at time.Time) (Delivery, error) {
	if d.Status != StatusPosted || d.AssignedTo != nil {
		return Delivery{}, fmt.Errorf("%w: delivery %s is %s", apperr.ErrRaceLost, d.ID, d.Status)
	}
	d.Status = StatusAccepted
	d.AssignedTo = &courierID
	d.AcceptedAt = &at
	d.UpdatedAt = at
	return d, nil
}

// Advance moves the delivery one step forward on behalf of its assigned courier.
func (d Delivery) Advance(courierID string, to Status, at time.Time) (Delivery, error) {
	if !to.Valid() {
		return Delivery{}, apperr.Invalid("status", fmt.Sprintf("unknown status %q", to))
	}
	if to == StatusAccepted {
		return Delivery{}, apperr.Invalid("status", "use accept to claim a delivery")
	}
	if !d.AssignedToCourier(courierID) {
		return Delivery{}, fmt.Errorf("%w: delivery %s is not assigned to %s", apperr.ErrForbidden, d.ID, courierID)
	}
	if !CanTransition(d.Status, to) {
		return Delivery{}, fmt.Errorf("%w: %s -> %s", apperr.ErrStaleState, d.Status, to)
	}

	d.Status = to
	d.UpdatedAt = at
	switch to {
	case StatusPickedUp:
		d.PickedUpAt = &at
	case StatusDelivered:
		by := *d.AssignedTo
		d.DeliveredBy = &by
		d.DeliveredAt = &at
	}
	return d, nil
}

// AssignedToCourier reports whether courierID holds the delivery.
func (d Delivery) AssignedToCourier(courierID string) bool {
	return d.AssignedTo != nil && *d.AssignedTo == courierID
}

// NavigationTarget is where the assigned courier should head next.
func (d Delivery) NavigationTarget() (geo.Point, bool) {
	switch d.Status {
	case StatusAccepted:
		return d.BusinessLocation, true
	case StatusPickedUp:
		return d.DestinationLocation, true
	default:
		return geo.Point{}, false
	}
}

// DistanceKm is the straight-line pickup-to-destination distance.
func (d Delivery) DistanceKm() float64 {
	return geo.DistanceKm(d.BusinessLocation, d.DestinationLocation)
}
