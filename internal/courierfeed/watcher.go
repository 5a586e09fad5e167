package courierfeed

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"courier-dispatch/internal/client"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
)

// Lister fetches the courier's visible deliveries.
type Lister interface {
	ListDeliveries(ctx context.Context, p client.ListParams) (client.DeliveryPage, error)
}

// Config tunes re-query behaviour.
type Config struct {
	// MoveThresholdKm suppresses re-fetch on jitter-level movement.
	MoveThresholdKm float64
	// Debounce is the trailing window that coalesces bursts of ticks.
	Debounce time.Duration
	// MinInterval caps the fetch rate.
	MinInterval time.Duration
	RadiusKm    float64
	PageSize    int
}

// DefaultConfig returns values suited to a sub-10-second position cadence.
func DefaultConfig() Config {
	return Config{
		MoveThresholdKm: 0.1,
		Debounce:        750 * time.Millisecond,
		MinInterval:     2 * time.Second,
		RadiusKm:        5,
		PageSize:        200,
	}
}

// Watcher turns position ticks and radius changes into debounced list fetches.
// A response is applied only if no request started later has been applied already.
type Watcher struct {
	lister  Lister
	board   *Board
	cfg     Config
	limiter *rate.Limiter
	logger  logx.Logger
	kick    chan struct{}

	mu       sync.Mutex
	pos      *geo.Point
	radius   float64
	anchor   *geo.Point // center of the last issued request
	anchorR  float64
	started  uint64
	applied  uint64
	inflight sync.WaitGroup
	onApply  func(seq uint64)
}

// NewWatcher builds a Watcher that writes into board.
func NewWatcher(lister Lister, board *Board, cfg Config, logger logx.Logger) (*Watcher, error) {
	if lister == nil || board == nil {
		return nil, errors.New("lister and board are required")
	}
	def := DefaultConfig()
	if cfg.MoveThresholdKm <= 0 {
		cfg.MoveThresholdKm = def.MoveThresholdKm
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = def.RadiusKm
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Watcher{
		lister:  lister,
		board:   board,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		logger:  logger,
		kick:    make(chan struct{}, 1),
		radius:  cfg.RadiusKm,
	}, nil
}

// OnApply registers a hook called after each applied snapshot.
func (w *Watcher) OnApply(fn func(seq uint64)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onApply = fn
}

// Position records a new device position.
func (w *Watcher) Position(p geo.Point) {
	w.mu.Lock()
	w.pos = &p
	need := w.needsFetchLocked()
	w.mu.Unlock()

	if need {
		w.signal()
	}
}

// SetRadius changes the search radius.
func (w *Watcher) SetRadius(km float64) error {
	if km <= 0 {
		return errors.New("radius must be positive")
	}
	w.mu.Lock()
	w.radius = km
	need := w.needsFetchLocked()
	w.mu.Unlock()

	if need {
		w.signal()
	}
	return nil
}

// SetZoom sets the radius from a map zoom level.
func (w *Watcher) SetZoom(zoom int) error {
	return w.SetRadius(geo.RadiusForZoom(zoom))
}

// Radius returns the current radius.
func (w *Watcher) Radius() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.radius
}

// Refresh forces a fetch on the next debounce tick regardless of movement.
func (w *Watcher) Refresh() {
	w.mu.Lock()
	w.anchor = nil
	w.mu.Unlock()
	w.signal()
}

// Run processes ticks until ctx is done, then waits for in-flight fetches.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer func() {
		timer.Stop()
		w.inflight.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.kick:
			// trailing debounce: every tick pushes the deadline out
			timer.Reset(w.cfg.Debounce)
		case <-timer.C:
			if err := w.limiter.Wait(ctx); err != nil {
				return ctx.Err()
			}
			w.issue(ctx)
		}
	}
}

func (w *Watcher) signal() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *Watcher) needsFetchLocked() bool {
	if w.pos == nil {
		return false
	}
	if w.anchor == nil || w.radius != w.anchorR {
		return true
	}
	return geo.DistanceKm(*w.anchor, *w.pos) > w.cfg.MoveThresholdKm
}

func (w *Watcher) issue(ctx context.Context) {
	w.mu.Lock()
	if !w.needsFetchLocked() {
		w.mu.Unlock()
		return
	}
	center := *w.pos
	radius := w.radius
	w.anchor = &center
	w.anchorR = radius
	w.started++
	seq := w.started
	w.mu.Unlock()

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		w.fetch(ctx, seq, center, radius)
	}()
}

func (w *Watcher) fetch(ctx context.Context, seq uint64, center geo.Point, radius float64) {
	page, err := w.lister.ListDeliveries(ctx, client.ListParams{
		Center:   &center,
		RadiusKm: radius,
		PageSize: w.cfg.PageSize,
	})
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("radius feed fetch failed", logx.Err(err))
		}
		// позволить следующему тику повторить запрос
		w.mu.Lock()
		if w.started == seq {
			w.anchor = nil
		}
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	if seq <= w.applied {
		w.mu.Unlock()
		w.logger.Debug("stale radius feed response dropped", logx.Int64("seq", int64(seq)))
		return
	}
	w.applied = seq
	w.board.Replace(page.Items)
	hook := w.onApply
	w.mu.Unlock()

	if hook != nil {
		hook(seq)
	}
}
