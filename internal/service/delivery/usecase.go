package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/visibility"
)

// Config tunes the delivery service.
type Config struct {
	OperationTimeout time.Duration
	DefaultRadiusKm  float64
}

// CreateInput is what a business submits for a new delivery.
type CreateInput struct {
	Item                string
	DestinationAddress  string
	DestinationLocation geo.Point
}

// Service is the only writer of delivery state.
type Service struct {
	repo             deliveryRepository
	accounts         accountReader
	positions        positionReader
	tariff           Quoter
	publisher        Publisher
	operationTimeout time.Duration
	defaultRadiusKm  float64
	logger           logx.Logger
	now              func() time.Time

	transitions *prometheus.CounterVec
	raceLost    prometheus.Counter
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

// NewService creates a new delivery Service. positions and publisher may be nil.
func NewService(
	r deliveryRepository,
	accounts accountReader,
	positions positionReader,
	tariff Quoter,
	publisher Publisher,
	cfg Config,
	logger logx.Logger,
) *Service {
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = 3 * time.Second
	}
	if cfg.DefaultRadiusKm <= 0 {
		cfg.DefaultRadiusKm = 5
	}
	return &Service{
		repo:             r,
		accounts:         accounts,
		positions:        positions,
		tariff:           tariff,
		publisher:        publisher,
		operationTimeout: cfg.OperationTimeout,
		defaultRadiusKm:  cfg.DefaultRadiusKm,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches transition and race-loss counters.
func (s *Service) WithMetrics(transitions *prometheus.CounterVec, raceLost prometheus.Counter) *Service {
	s.transitions = transitions
	s.raceLost = raceLost
	return s
}

// Create posts a new delivery on behalf of a business. The payment is
// quoted once here and never recomputed.
func (s *Service) Create(ctx context.Context, v visibility.Viewer, in CreateInput) (domain.Delivery, error) {
	if v.Role != domain.RoleBusiness {
		return domain.Delivery{}, fmt.Errorf("only businesses create deliveries: %w", apperr.ErrForbidden)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	profile, err := s.accounts.Get(ctx, v.ID)
	if err != nil {
		return domain.Delivery{}, err
	}
	acc, err := profile.Account()
	if err != nil {
		return domain.Delivery{}, err
	}
	business, ok := acc.(domain.BusinessAccount)
	if !ok {
		return domain.Delivery{}, fmt.Errorf("account %s is not a business: %w", v.ID, apperr.ErrForbidden)
	}

	now := s.now()
	d, err := domain.NewDelivery(domain.NewDeliveryParams{
		ID:                  uuid.New(),
		Business:            business,
		DestinationAddress:  in.DestinationAddress,
		DestinationLocation: in.DestinationLocation,
		Item:                in.Item,
		Payment:             s.tariff.Quote(geo.DistanceKm(business.Location, in.DestinationLocation), now),
		CreatedAt:           now,
	})
	if err != nil {
		return domain.Delivery{}, err
	}

	if err := s.repo.Insert(ctx, d); err != nil {
		return domain.Delivery{}, err
	}

	s.logger.Info("delivery created",
		logx.String("event", "delivery_created"),
		logx.String("delivery_id", d.ID.String()),
		logx.String("business_id", d.BusinessID),
		logx.Float64("payment", d.Payment),
	)
	s.changed(ctx, d)
	return d, nil
}

// Get returns one delivery if v may see it. Invisible rows look missing.
func (s *Service) Get(ctx context.Context, v visibility.Viewer, id uuid.UUID) (domain.Delivery, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Delivery{}, err
	}

	var r *visibility.Radius
	if v.Role == domain.RoleCourier {
		r = s.courierRadius(ctx, v.ID, nil, 0)
	}
	if !visibility.Visible(v, d, r) {
		return domain.Delivery{}, fmt.Errorf("delivery %s: %w", id, apperr.ErrNotFound)
	}
	return d, nil
}

// List returns the page of deliveries v may see.
func (s *Service) List(ctx context.Context, v visibility.Viewer, q ListQuery) (Page, error) {
	limit, offset, err := q.window()
	if err != nil {
		return Page{}, err
	}
	for _, st := range q.Statuses {
		if !st.Valid() {
			return Page{}, apperr.Invalid("status", fmt.Sprintf("unknown status %q", st))
		}
	}
	if q.Center != nil && !q.Center.Valid() {
		return Page{}, apperr.Invalid("lat", "coordinates out of range")
	}
	if q.RadiusKm < 0 {
		return Page{}, apperr.Invalid("r", "must be positive")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	f := Filter{Statuses: q.Statuses, From: q.From, To: q.To, Limit: limit, Offset: offset}
	var r *visibility.Radius

	switch v.Role {
	case domain.RoleAdmin:
	case domain.RoleBusiness:
		f.BusinessID = v.ID
	case domain.RoleCourier:
		f.CourierID = v.ID
		if len(f.Statuses) == 0 {
			f.Statuses = []domain.Status{domain.StatusPosted, domain.StatusAccepted, domain.StatusPickedUp}
		}
		r = s.courierRadius(ctx, v.ID, q.Center, q.RadiusKm)
		if r != nil {
			box := geo.BoundingBox(r.Center, r.RadiusKm)
			f.CandidateBox = &box
		}
	default:
		return Page{}, fmt.Errorf("role %q cannot list deliveries: %w", v.Role, apperr.ErrForbidden)
	}

	rows, err := s.repo.List(ctx, f)
	if err != nil {
		return Page{}, err
	}

	return Page{
		Items:         visibility.Filter(v, rows, r),
		NextPageToken: nextToken(len(rows), limit, offset),
	}, nil
}

// Accept claims a posted delivery for the calling courier. At most one
// courier wins; everybody else gets apperr.ErrRaceLost.
func (s *Service) Accept(ctx context.Context, v visibility.Viewer, id uuid.UUID) (domain.Delivery, error) {
	if v.Role != domain.RoleCourier {
		return domain.Delivery{}, fmt.Errorf("only couriers accept deliveries: %w", apperr.ErrForbidden)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var result domain.Delivery
	err := s.repo.WithTx(ctx, func(tx TxRepository) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := cur.Accept(v.ID, s.now())
		if err != nil {
			return err
		}
		if err := tx.SaveTransition(ctx, cur.Status, next); err != nil {
			if errors.Is(err, apperr.ErrStaleState) {
				return fmt.Errorf("%w: %v", apperr.ErrRaceLost, err)
			}
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrRaceLost) {
			if s.raceLost != nil {
				s.raceLost.Inc()
			}
			s.logger.Info("accept lost",
				logx.String("event", "race_lost"),
				logx.String("delivery_id", id.String()),
				logx.String("courier_id", v.ID),
			)
		}
		return domain.Delivery{}, err
	}

	s.logger.Info("delivery accepted",
		logx.String("event", "delivery_accepted"),
		logx.String("delivery_id", result.ID.String()),
		logx.String("courier_id", v.ID),
	)
	s.changed(ctx, result)
	return result, nil
}

// Advance moves an assigned delivery one step forward. Delivering credits
// the courier with the delivery payment in the same transaction.
func (s *Service) Advance(ctx context.Context, v visibility.Viewer, id uuid.UUID, to domain.Status) (domain.Delivery, error) {
	if v.Role != domain.RoleCourier {
		return domain.Delivery{}, fmt.Errorf("only couriers change delivery status: %w", apperr.ErrForbidden)
	}
	if to == domain.StatusAccepted {
		return s.Accept(ctx, v, id)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var result domain.Delivery
	err := s.repo.WithTx(ctx, func(tx TxRepository) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := cur.Advance(v.ID, to, s.now())
		if err != nil {
			return err
		}
		if err := tx.SaveTransition(ctx, cur.Status, next); err != nil {
			return err
		}
		if next.Status == domain.StatusDelivered && next.Payment > 0 {
			if err := tx.CreditBalance(ctx, v.ID, next.Payment); err != nil {
				return err
			}
		}
		result = next
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrStaleState) {
			s.logger.Info("stale transition rejected",
				logx.String("event", "stale_state"),
				logx.String("delivery_id", id.String()),
				logx.String("courier_id", v.ID),
				logx.String("to", string(to)),
			)
		}
		return domain.Delivery{}, err
	}

	s.logger.Info("delivery advanced",
		logx.String("event", "delivery_"+string(result.Status)),
		logx.String("delivery_id", result.ID.String()),
		logx.String("courier_id", v.ID),
	)
	s.changed(ctx, result)
	return result, nil
}

// courierRadius resolves the radius feed center and size. It returns nil
// when the courier position is unknown.
func (s *Service) courierRadius(ctx context.Context, courierID string, center *geo.Point, radiusKm float64) *visibility.Radius {
	if radiusKm <= 0 {
		radiusKm = s.defaultRadiusKm
	}
	if center != nil {
		return &visibility.Radius{Center: *center, RadiusKm: radiusKm}
	}
	if s.positions == nil {
		return nil
	}

	loc, err := s.positions.Get(ctx, courierID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.logger.Warn("courier position unavailable",
				logx.String("courier_id", courierID),
				logx.Err(err),
			)
		}
		return nil
	}
	return &visibility.Radius{Center: loc.Point, RadiusKm: radiusKm}
}

// changed records and publishes a successful mutation. Publishing never
// undoes the write.
func (s *Service) changed(ctx context.Context, d domain.Delivery) {
	if s.transitions != nil {
		s.transitions.WithLabelValues(string(d.Status)).Inc()
	}
	if s.publisher == nil {
		return
	}

	ev := domain.DeliveryEvent{Kind: domain.EventKindFor(d.Status), Delivery: d, OccurredAt: d.UpdatedAt}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error("publish delivery event failed",
			logx.String("delivery_id", d.ID.String()),
			logx.String("kind", string(ev.Kind)),
			logx.Err(err),
		)
	}
}

// ParseStatuses splits a comma separated status filter.
func ParseStatuses(raw string) ([]domain.Status, error) {
	var out []domain.Status
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		st, err := domain.ParseStatus(part)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
