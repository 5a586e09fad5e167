// Package sim replays a courier route against the dispatch API.
package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/client"
	"courier-dispatch/internal/courierfeed"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/http/handlers"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/visibility"
)

// API is the subset of the REST client the simulator drives.
type API interface {
	Me(ctx context.Context) (handlers.MeResponse, error)
	Onboard(ctx context.Context, in client.OnboardRequest) (handlers.MeResponse, error)
	Accept(ctx context.Context, id string) (handlers.DeliveryResponse, error)
	Advance(ctx context.Context, id, status string) (handlers.DeliveryResponse, error)
}

// Emitter reports a device position.
type Emitter func(ctx context.Context, pt geo.Point, at time.Time) error

// Options configure a run.
type Options struct {
	Name       string
	Tick       time.Duration
	AutoAccept bool
}

// Sim walks a route, feeding positions to the server and to the radius watcher.
type Sim struct {
	api     API
	watcher *courierfeed.Watcher
	board   *courierfeed.Board
	emit    Emitter
	opt     Options
	logger  logx.Logger
	now     func() time.Time

	applied chan struct{}
	held    string
	status  domain.Status
}

// New builds a simulator.
func New(api API, watcher *courierfeed.Watcher, board *courierfeed.Board, emit Emitter, opt Options, logger logx.Logger) (*Sim, error) {
	if api == nil || watcher == nil || board == nil || emit == nil {
		return nil, errors.New("api, watcher, board and emitter are required")
	}
	if opt.Tick <= 0 {
		opt.Tick = 5 * time.Second
	}
	if opt.Name == "" {
		opt.Name = "Sim Courier"
	}
	if logger == nil {
		logger = logx.Nop()
	}
	s := &Sim{
		api:     api,
		watcher: watcher,
		board:   board,
		emit:    emit,
		opt:     opt,
		logger:  logger,
		now:     time.Now,
		applied: make(chan struct{}, 1),
	}
	watcher.OnApply(func(uint64) {
		select {
		case s.applied <- struct{}{}:
		default:
		}
	})
	return s, nil
}

// EnsureCourier onboards the caller as a courier when no role is set yet.
func (s *Sim) EnsureCourier(ctx context.Context) error {
	me, err := s.api.Me(ctx)
	if err != nil {
		return fmt.Errorf("me: %w", err)
	}
	switch {
	case me.Phase == domain.PhaseRolePending.String():
		if _, err := s.api.Onboard(ctx, client.OnboardRequest{Role: string(domain.RoleCourier), Name: s.opt.Name}); err != nil {
			return fmt.Errorf("onboard: %w", err)
		}
		s.logger.Info("onboarded as courier", logx.String("name", s.opt.Name))
		return nil
	case me.Account.Role != string(domain.RoleCourier):
		return fmt.Errorf("account has role %q: %w", me.Account.Role, apperr.ErrForbidden)
	default:
		return nil
	}
}

// Run replays route one point per tick. The held delivery is picked up on the
// first tick after accept and delivered at the last point.
func (s *Sim) Run(ctx context.Context, route []geo.Point) error {
	if len(route) == 0 {
		return apperr.Invalid("route", "empty")
	}

	ticker := time.NewTicker(s.opt.Tick)
	defer ticker.Stop()

	for i, pt := range route {
		if err := s.emit(ctx, pt, s.now()); err != nil {
			s.logger.Warn("position not sent", logx.Err(err))
		}
		s.watcher.Position(pt)

		if s.opt.AutoAccept {
			s.step(ctx, i == len(route)-1)
		}

		if i == len(route)-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.applied:
			s.logger.Debug("radius feed updated", logx.Int("rows", s.board.Len()))
			<-ticker.C
		case <-ticker.C:
		}
	}
	s.logger.Info("route finished", logx.Int("points", len(route)))
	return nil
}

func (s *Sim) step(ctx context.Context, last bool) {
	switch {
	case s.held == "":
		s.tryAccept(ctx)
	case s.status == domain.StatusAccepted:
		s.advance(ctx, domain.StatusPickedUp)
	case s.status == domain.StatusPickedUp && last:
		s.advance(ctx, domain.StatusDelivered)
	}
}

func (s *Sim) tryAccept(ctx context.Context) {
	for _, row := range s.board.WithAction(string(visibility.ActionAccept)) {
		d, err := s.api.Accept(ctx, row.ID)
		switch {
		case err == nil:
			s.held, s.status = d.ID, domain.Status(d.Status)
			s.board.Upsert(d)
			s.logger.Info("delivery accepted", logx.String("delivery_id", d.ID), logx.Float64("payment", d.Payment))
			return
		case errors.Is(err, apperr.ErrRaceLost), errors.Is(err, apperr.ErrStaleState):
			s.logger.Info("delivery taken by another courier", logx.String("delivery_id", row.ID))
			s.watcher.Refresh()
		default:
			s.logger.Warn("accept failed", logx.String("delivery_id", row.ID), logx.Err(err))
			return
		}
	}
}

func (s *Sim) advance(ctx context.Context, to domain.Status) {
	d, err := s.api.Advance(ctx, s.held, string(to))
	if err != nil {
		s.logger.Warn("advance failed", logx.String("delivery_id", s.held), logx.String("to", string(to)), logx.Err(err))
		if errors.Is(err, apperr.ErrStaleState) || errors.Is(err, apperr.ErrNotFound) {
			s.held, s.status = "", ""
		}
		return
	}
	s.status = domain.Status(d.Status)
	s.board.Upsert(d)
	s.logger.Info("delivery advanced", logx.String("delivery_id", d.ID), logx.String("status", d.Status))
	if s.status == domain.StatusDelivered {
		s.held, s.status = "", ""
	}
}

// Interpolate returns steps+1 evenly spaced points from a to b inclusive.
func Interpolate(a, b geo.Point, steps int) []geo.Point {
	if steps < 1 {
		return []geo.Point{a, b}
	}
	out := make([]geo.Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		f := float64(i) / float64(steps)
		out = append(out, geo.Point{
			Lat: a.Lat + (b.Lat-a.Lat)*f,
			Lng: a.Lng + (b.Lng-a.Lng)*f,
		})
	}
	return out
}
