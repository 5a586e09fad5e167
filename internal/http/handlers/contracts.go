package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"courier-dispatch/internal/auth"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/service/account"
	"courier-dispatch/internal/service/delivery"
	"courier-dispatch/internal/service/location"
	"courier-dispatch/internal/visibility"
)

type deliveryUsecase interface {
	Create(ctx context.Context, v visibility.Viewer, in delivery.CreateInput) (domain.Delivery, error)
	Get(ctx context.Context, v visibility.Viewer, id uuid.UUID) (domain.Delivery, error)
	List(ctx context.Context, v visibility.Viewer, q delivery.ListQuery) (delivery.Page, error)
	Accept(ctx context.Context, v visibility.Viewer, id uuid.UUID) (domain.Delivery, error)
	Advance(ctx context.Context, v visibility.Viewer, id uuid.UUID, to domain.Status) (domain.Delivery, error)
}

// NewDeliveryUsecase wires a delivery Service into a deliveryUsecase.
func NewDeliveryUsecase(svc *delivery.Service) deliveryUsecase {
	return svc
}

type accountUsecase interface {
	Onboard(ctx context.Context, id auth.Identity, in account.OnboardInput) (domain.Account, error)
	Me(ctx context.Context, accountID string) (domain.Account, error)
	ListCouriers(ctx context.Context, v visibility.Viewer, limit, offset int) ([]domain.CourierAccount, error)
	ListBusinesses(ctx context.Context, v visibility.Viewer, limit, offset int) ([]domain.BusinessAccount, error)
}

// NewAccountUsecase wires an account Service into an accountUsecase.
func NewAccountUsecase(svc *account.Service) accountUsecase {
	return svc
}

type locationUsecase interface {
	Update(ctx context.Context, v visibility.Viewer, in location.UpdateInput) (domain.CourierLocation, error)
	Current(ctx context.Context, v visibility.Viewer, courierID string) (domain.CourierLocation, error)
	All(ctx context.Context, v visibility.Viewer) ([]domain.CourierLocation, error)
	History(ctx context.Context, v visibility.Viewer, courierID string, limit int) ([]domain.LocationPing, error)
	Nearby(ctx context.Context, v visibility.Viewer, center geo.Point, radiusKm float64) ([]domain.CourierLocation, error)
}

// NewLocationUsecase wires a location Service into a locationUsecase.
func NewLocationUsecase(svc *location.Service) locationUsecase {
	return svc
}

type reportUsecase interface {
	Overview(ctx context.Context, v visibility.Viewer, from, to time.Time) (domain.Overview, error)
}
