package handlers

import (
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/visibility"
)

func (p pointDTO) toPoint() geo.Point {
	return geo.Point{Lat: *p.Lat, Lng: *p.Lng}
}

// NewDeliveryResponse renders d for viewer v, including the row actions v may take.
func NewDeliveryResponse(v visibility.Viewer, d domain.Delivery) DeliveryResponse {
	actions := visibility.ActionsFor(v, d)
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, string(a))
	}
	return DeliveryResponse{
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
		DistanceKm:          d.DistanceKm(),
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
		AcceptedAt:          d.AcceptedAt,
		PickedUpAt:          d.PickedUpAt,
		DeliveredAt:         d.DeliveredAt,
		Actions:             names,
	}
}

// NewDeliveryResponses renders a list for v.
func NewDeliveryResponses(v visibility.Viewer, list []domain.Delivery) []DeliveryResponse {
	out := make([]DeliveryResponse, 0, len(list))
	for _, d := range list {
		out = append(out, NewDeliveryResponse(v, d))
	}
	return out
}

// NewAccountResponse flattens an account variant.
func NewAccountResponse(a domain.Account) AccountResponse {
	p := domain.ProfileOf(a)
	out := AccountResponse{
		ID:       p.ID,
		Email:    p.Email,
		Role:     string(p.Role),
		Name:     p.Name,
		Address:  p.Address,
		Location: p.Location,
		PlaceID:  p.PlaceID,
	}
	if p.Role == domain.RoleCourier {
		balance := p.Balance
		out.Balance = &balance
	}
	return out
}

// NewLocationResponse renders a position slot.
func NewLocationResponse(l domain.CourierLocation) LocationResponse {
	return LocationResponse{
		CourierID: l.CourierID,
		Lat:       l.Point.Lat,
		Lng:       l.Point.Lng,
		EmittedAt: l.EmittedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func newOverviewResponse(o domain.Overview) overviewResponse {
	out := overviewResponse{
		Counts: make(map[string]int64, len(o.Counts)),
		Trend:  make([]trendBucketResponse, 0, len(o.Trend)),
	}
	for s, n := range o.Counts {
		out.Counts[string(s)] = n
	}
	for _, b := range o.Trend {
		out.Trend = append(out.Trend, trendBucketResponse{
			Day:       b.Day.Format("2006-01-02"),
			Created:   b.Created,
			Delivered: b.Delivered,
			Revenue:   b.Revenue,
		})
	}
	for _, c := range o.Leaderboard {
		out.Leaderboard = append(out.Leaderboard, NewAccountResponse(c))
	}
	return out
}
