package livefeed

import (
	"time"

	"courier-dispatch/internal/http/handlers"
)

// Outbound message types.
const (
	TypeDeliveries = "deliveries"
	TypeLocation   = "location"
	TypeError      = "error"
)

// Inbound message types.
const (
	TypeTrack   = "track"
	TypeUntrack = "untrack"
	TypeRadius  = "radius"
	TypeFilter  = "filter"
)

// Outbound is a server to client frame. Deliveries always carries the full
// visible list.
type Outbound struct {
	Type       string                      `json:"type"`
	Deliveries []handlers.DeliveryResponse `json:"deliveries"`
	Location   *handlers.LocationResponse  `json:"location,omitempty"`
	Error      string                      `json:"error,omitempty"`
	Code       string                      `json:"code,omitempty"`
	At         time.Time                   `json:"at"`
}

// Inbound is a client to server frame.
type Inbound struct {
	Type      string   `json:"type"`
	CourierID string   `json:"courierId,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
	RadiusKm  float64  `json:"radiusKm,omitempty"`
	Statuses  []string `json:"statuses,omitempty"`
}
