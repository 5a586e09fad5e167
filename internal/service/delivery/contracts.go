//go:generate mockgen -source=contracts.go -destination=mocks_test.go -package=delivery_test

package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"courier-dispatch/internal/domain"
)

// TxRepository is the delivery storage visible inside one transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Delivery, error)
	SaveTransition(ctx context.Context, from domain.Status, d domain.Delivery) error
	CreditBalance(ctx context.Context, courierID string, amount float64) error
}

type deliveryRepository interface {
	WithTx(ctx context.Context, fn func(tx TxRepository) error) error
	Insert(ctx context.Context, d domain.Delivery) error
	Get(ctx context.Context, id uuid.UUID) (domain.Delivery, error)
	List(ctx context.Context, f Filter) ([]domain.Delivery, error)
}

type accountReader interface {
	Get(ctx context.Context, id string) (domain.Profile, error)
}

type positionReader interface {
	Get(ctx context.Context, courierID string) (domain.CourierLocation, error)
}

// Quoter prices a trip of distanceKm requested at a given time.
type Quoter interface {
	Quote(distanceKm float64, at time.Time) float64
}

// Publisher fans delivery changes out to other consumers.
type Publisher interface {
	Publish(ctx context.Context, ev domain.DeliveryEvent) error
}
