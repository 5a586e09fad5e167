package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
)

// EventDTO is the wire form of domain.DeliveryEvent on the change stream.
type EventDTO struct {
	Kind       string      `json:"kind"`
	Delivery   DeliveryDTO `json:"delivery"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// DeliveryDTO is the full delivery state after the change.
type DeliveryDTO struct {
	ID                  string     `json:"id"`
	BusinessID          string     `json:"business_id"`
	BusinessName        string     `json:"business_name"`
	BusinessAddress     string     `json:"business_address"`
	BusinessLocation    geo.Point  `json:"business_location"`
	DestinationAddress  string     `json:"destination_address"`
	DestinationLocation geo.Point  `json:"destination_location"`
	Item                string     `json:"item"`
	Payment             float64    `json:"payment"`
	Status              string     `json:"status"`
	AssignedTo          *string    `json:"assigned_to,omitempty"`
	DeliveredBy         *string    `json:"delivered_by,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	AcceptedAt          *time.Time `json:"accepted_at,omitempty"`
	PickedUpAt          *time.Time `json:"picked_up_at,omitempty"`
	DeliveredAt         *time.Time `json:"delivered_at,omitempty"`
}

// FromDomain converts a delivery event to its wire form.
func FromDomain(ev domain.DeliveryEvent) EventDTO {
	d := ev.Delivery
	return EventDTO{
		Kind:       string(ev.Kind),
		OccurredAt: ev.OccurredAt,
		Delivery: DeliveryDTO{
			ID:                  d.ID.String(),
			BusinessID:          d.BusinessID,
			BusinessName:        d.BusinessName,
			BusinessAddress:     d.BusinessAddress,
			BusinessLocation:    d.BusinessLocation,
			DestinationAddress:  d.DestinationAddress,
			DestinationLocation: d.DestinationLocation,
			Item:                d.Item,
			Payment:             d.Payment,
			Status:              string(d.Status),
			AssignedTo:          d.AssignedTo,
			DeliveredBy:         d.DeliveredBy,
			CreatedAt:           d.CreatedAt,
			UpdatedAt:           d.UpdatedAt,
			AcceptedAt:          d.AcceptedAt,
			PickedUpAt:          d.PickedUpAt,
			DeliveredAt:         d.DeliveredAt,
		},
	}
}

// ToDomain converts EventDTO to domain.DeliveryEvent. Malformed events are
// permanent errors.
func ToDomain(dto EventDTO) (domain.DeliveryEvent, error) {
	id, err := uuid.Parse(strings.TrimSpace(dto.Delivery.ID))
	if err != nil {
		return domain.DeliveryEvent{}, Permanent(fmt.Errorf("delivery id %q: %w", dto.Delivery.ID, err))
	}
	status, err := domain.ParseStatus(dto.Delivery.Status)
	if err != nil {
		return domain.DeliveryEvent{}, Permanent(err)
	}

	kind := domain.EventKind(strings.TrimSpace(dto.Kind))
	if kind == "" {
		kind = domain.EventKindFor(status)
	}

	d := dto.Delivery
	return domain.DeliveryEvent{
		Kind:       kind,
		OccurredAt: dto.OccurredAt,
		Delivery: domain.Delivery{
			ID:                  id,
			BusinessID:          d.BusinessID,
			BusinessName:        d.BusinessName,
			BusinessAddress:     d.BusinessAddress,
			BusinessLocation:    d.BusinessLocation,
			DestinationAddress:  d.DestinationAddress,
			DestinationLocation: d.DestinationLocation,
			Item:                d.Item,
			Payment:             d.Payment,
			Status:              status,
			AssignedTo:          d.AssignedTo,
			DeliveredBy:         d.DeliveredBy,
			CreatedAt:           d.CreatedAt,
			UpdatedAt:           d.UpdatedAt,
			AcceptedAt:          d.AcceptedAt,
			PickedUpAt:          d.PickedUpAt,
			DeliveredAt:         d.DeliveredAt,
		},
	}, nil
}
