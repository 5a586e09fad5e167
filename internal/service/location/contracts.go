package location

import (
	"context"

	"courier-dispatch/internal/domain"
)

type positionStore interface {
	Set(ctx context.Context, loc domain.CourierLocation) error
	Get(ctx context.Context, courierID string) (domain.CourierLocation, error)
	All(ctx context.Context) ([]domain.CourierLocation, error)
	Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]string, error)
	Subscribe(ctx context.Context, courierID string) (<-chan domain.CourierLocation, error)
}

type historyRepository interface {
	Append(ctx context.Context, p domain.LocationPing) error
	Recent(ctx context.Context, courierID string, limit int) ([]domain.LocationPing, error)
}

type assignmentChecker interface {
	HasActiveBetween(ctx context.Context, businessID, courierID string) (bool, error)
}
