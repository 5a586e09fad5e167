package domain

import (
	"time"

	"courier-dispatch/internal/geo"
)

// CourierLocation is the current-position slot of one courier.
type CourierLocation struct {
	CourierID string    `json:"courier_id"`
	Point     geo.Point `json:"point"`
	EmittedAt time.Time `json:"emitted_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LocationPing is one history sample.
type LocationPing struct {
	CourierID  string
	Point      geo.Point
	RecordedAt time.Time
}
