// Package location maintains the live courier position projection.
package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/visibility"
)

// Sources of location updates.
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

// UpdateInput is one position report from a courier device.
type UpdateInput struct {
	Point     geo.Point
	EmittedAt time.Time
	Source    string
}

// Service writes and authorizes reads of courier positions.
type Service struct {
	store            positionStore
	history          historyRepository
	deliveries       assignmentChecker
	historyInterval  time.Duration
	operationTimeout time.Duration
	logger           logx.Logger
	now              func() time.Time
	updates          *prometheus.CounterVec

	mu          sync.Mutex
	lastSampled map[string]time.Time
	lastSweep   time.Time
}

// NewService creates a location Service. history may be nil to disable sampling.
func NewService(store positionStore, history historyRepository, deliveries assignmentChecker, historyInterval time.Duration, logger logx.Logger) *Service {
	if historyInterval <= 0 {
		historyInterval = time.Minute
	}
	return &Service{
		store:            store,
		history:          history,
		deliveries:       deliveries,
		historyInterval:  historyInterval,
		operationTimeout: 3 * time.Second,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
		lastSampled:      make(map[string]time.Time),
	}
}

// WithMetrics attaches the update counter.
func (s *Service) WithMetrics(updates *prometheus.CounterVec) *Service {
	s.updates = updates
	return s
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

// Update overwrites the caller's own position slot.
func (s *Service) Update(ctx context.Context, v visibility.Viewer, in UpdateInput) (domain.CourierLocation, error) {
	if v.Role != domain.RoleCourier {
		return domain.CourierLocation{}, fmt.Errorf("only couriers report positions: %w", apperr.ErrForbidden)
	}
	if !in.Point.Valid() {
		return domain.CourierLocation{}, apperr.Invalid("lat", "coordinates out of range")
	}

	now := s.now()
	emitted := in.EmittedAt
	if emitted.IsZero() {
		emitted = now
	}
	loc := domain.CourierLocation{CourierID: v.ID, Point: in.Point, EmittedAt: emitted.UTC(), UpdatedAt: now}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.Set(ctx, loc); err != nil {
		return domain.CourierLocation{}, err
	}
	if s.updates != nil {
		source := in.Source
		if source == "" {
			source = SourceHTTP
		}
		s.updates.WithLabelValues(source).Inc()
	}

	if s.history != nil && s.dueForSample(v.ID, now) {
		ping := domain.LocationPing{CourierID: v.ID, Point: in.Point, RecordedAt: emitted.UTC()}
		if err := s.history.Append(ctx, ping); err != nil {
			s.logger.Warn("append location history failed",
				logx.String("courier_id", v.ID),
				logx.Err(err),
			)
		}
	}
	return loc, nil
}

// dueForSample reports whether the courier's next history sample is due and
// reserves it.
func (s *Service) dueForSample(courierID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= s.historyInterval {
		// записи старше интервала все равно дали бы true
		for id, at := range s.lastSampled {
			if now.Sub(at) >= s.historyInterval {
				delete(s.lastSampled, id)
			}
		}
		s.lastSweep = now
	}

	last, ok := s.lastSampled[courierID]
	if ok && now.Sub(last) < s.historyInterval {
		return false
	}
	s.lastSampled[courierID] = now
	return true
}

// Current returns the slot of courierID if v may track it.
func (s *Service) Current(ctx context.Context, v visibility.Viewer, courierID string) (domain.CourierLocation, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.authorize(ctx, v, courierID); err != nil {
		return domain.CourierLocation{}, err
	}
	return s.store.Get(ctx, courierID)
}

// Subscribe streams courierID positions to v until ctx ends.
func (s *Service) Subscribe(ctx context.Context, v visibility.Viewer, courierID string) (<-chan domain.CourierLocation, error) {
	authCtx, cancel := s.withTimeout(ctx)
	err := s.authorize(authCtx, v, courierID)
	cancel()
	if err != nil {
		return nil, err
	}
	if v.Role != domain.RoleBusiness {
		return s.store.Subscribe(ctx, courierID)
	}

	subCtx, stop := context.WithCancel(ctx)
	src, err := s.store.Subscribe(subCtx, courierID)
	if err != nil {
		stop()
		return nil, err
	}
	return s.guard(subCtx, stop, v, courierID, src), nil
}

// guard re-checks a business's right to track before forwarding each position.
// The stream ends once the courier no longer holds one of its active deliveries.
func (s *Service) guard(
	ctx context.Context,
	stop context.CancelFunc,
	v visibility.Viewer,
	courierID string,
	src <-chan domain.CourierLocation,
) <-chan domain.CourierLocation {
	out := make(chan domain.CourierLocation)
	go func() {
		defer close(out)
		defer stop()

		for loc := range src {
			authCtx, cancel := s.withTimeout(ctx)
			err := s.authorize(authCtx, v, courierID)
			cancel()
			if err != nil {
				s.logger.Info("tracking stream closed",
					logx.String("business_id", v.ID),
					logx.String("courier_id", courierID),
					logx.Err(err),
				)
				return
			}
			select {
			case out <- loc:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// All returns every courier position. Admin only.
func (s *Service) All(ctx context.Context, v visibility.Viewer) ([]domain.CourierLocation, error) {
	if v.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("courier map: %w", apperr.ErrForbidden)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.All(ctx)
}

// Nearby returns the positions of couriers within radiusKm of center,
// nearest first. Admin only.
func (s *Service) Nearby(ctx context.Context, v visibility.Viewer, center geo.Point, radiusKm float64) ([]domain.CourierLocation, error) {
	if v.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("nearby couriers: %w", apperr.ErrForbidden)
	}
	if !center.Valid() {
		return nil, apperr.Invalid("lat", "coordinates out of range")
	}
	if radiusKm <= 0 {
		return nil, apperr.Invalid("r", "must be positive")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ids, err := s.store.Nearby(ctx, center.Lat, center.Lng, radiusKm)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CourierLocation, 0, len(ids))
	for _, id := range ids {
		loc, err := s.store.Get(ctx, id)
		if err != nil {
			// слот мог истечь между поиском и чтением
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

// History returns recent samples of one courier. Admin only.
func (s *Service) History(ctx context.Context, v visibility.Viewer, courierID string, limit int) ([]domain.LocationPing, error) {
	if v.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("location history: %w", apperr.ErrForbidden)
	}
	if s.history == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.history.Recent(ctx, courierID, limit)
}

// authorize: couriers track themselves, businesses track couriers holding
// one of their active deliveries, admins track anyone.
func (s *Service) authorize(ctx context.Context, v visibility.Viewer, courierID string) error {
	switch v.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleCourier:
		if v.ID == courierID {
			return nil
		}
	case domain.RoleBusiness:
		ok, err := s.deliveries.HasActiveBetween(ctx, v.ID, courierID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("tracking courier %s: %w", courierID, apperr.ErrForbidden)
}
