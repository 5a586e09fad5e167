package handlers

import (
	"time"

	"courier-dispatch/internal/geo"
)

type pointDTO struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

type createDeliveryRequest struct {
	Item                string    `json:"item" validate:"required,max=200"`
	DestinationAddress  string    `json:"destinationAddress" validate:"max=300"`
	DestinationLocation *pointDTO `json:"destinationLocation" validate:"required"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,delivery_status"`
}

type onboardRequest struct {
	Role     string    `json:"role" validate:"required,oneof=business courier admin"`
	Name     string    `json:"name" validate:"required,max=120"`
	Address  string    `json:"address" validate:"required_if=Role business,max=300"`
	Location *pointDTO `json:"location" validate:"required_if=Role business"`
	PlaceID  string    `json:"placeId" validate:"max=200"`
}

type locationRequest struct {
	Lat       *float64   `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng       *float64   `json:"lng" validate:"required,gte=-180,lte=180"`
	EmittedAt *time.Time `json:"emittedAt"`
}

// DeliveryResponse is the wire form of a delivery as seen by one caller.
type DeliveryResponse struct {
	ID                  string     `json:"id"`
	BusinessID          string     `json:"businessId"`
	BusinessName        string     `json:"businessName"`
	BusinessAddress     string     `json:"businessAddress"`
	BusinessLocation    geo.Point  `json:"businessLocation"`
	DestinationAddress  string     `json:"destinationAddress"`
	DestinationLocation geo.Point  `json:"destinationLocation"`
	Item                string     `json:"item"`
	Payment             float64    `json:"payment"`
	Status              string     `json:"status"`
	AssignedTo          *string    `json:"assignedTo"`
	DeliveredBy         *string    `json:"deliveredBy,omitempty"`
	DistanceKm          float64    `json:"distanceKm"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	AcceptedAt          *time.Time `json:"acceptedAt,omitempty"`
	PickedUpAt          *time.Time `json:"pickedUpAt,omitempty"`
	DeliveredAt         *time.Time `json:"deliveredAt,omitempty"`
	Actions             []string   `json:"actions"`
}

// AccountResponse flattens any account variant.
type AccountResponse struct {
	ID       string     `json:"id"`
	Email    string     `json:"email"`
	Role     string     `json:"role,omitempty"`
	Name     string     `json:"name,omitempty"`
	Address  string     `json:"address,omitempty"`
	Location *geo.Point `json:"location,omitempty"`
	PlaceID  string     `json:"placeId,omitempty"`
	Balance  *float64   `json:"balance,omitempty"`
}

// MeResponse describes the caller session.
type MeResponse struct {
	Phase   string          `json:"phase"`
	Account AccountResponse `json:"account"`
}

// LocationResponse is a courier position slot.
type LocationResponse struct {
	CourierID string    `json:"courierId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	EmittedAt time.Time `json:"emittedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type locationPingResponse struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recordedAt"`
}

type trendBucketResponse struct {
	Day       string  `json:"day"`
	Created   int64   `json:"created"`
	Delivered int64   `json:"delivered"`
	Revenue   float64 `json:"revenue"`
}

type overviewResponse struct {
	Counts      map[string]int64      `json:"counts"`
	Trend       []trendBucketResponse `json:"trend"`
	Leaderboard []AccountResponse     `json:"leaderboard,omitempty"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

type deliveryPageResponse struct {
	Items         []DeliveryResponse `json:"items"`
	NextPageToken string             `json:"nextPageToken,omitempty"`
}
