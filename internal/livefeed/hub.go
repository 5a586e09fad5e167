// Package livefeed pushes delivery snapshots and tracked courier positions
// to connected dashboards over WebSocket.
package livefeed

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"courier-dispatch/internal/auth"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/http/handlers"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/service/delivery"
	"courier-dispatch/internal/visibility"
)

const (
	sendBuffer      = 32
	snapshotSize    = 200
	snapshotTimeout = 5 * time.Second
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 30 * time.Second
	maxFrameSize    = 4096
)

// Snapshotter lists what a viewer may see.
type Snapshotter interface {
	List(ctx context.Context, v visibility.Viewer, q delivery.ListQuery) (delivery.Page, error)
}

// Tracker streams authorized courier positions.
type Tracker interface {
	Subscribe(ctx context.Context, v visibility.Viewer, courierID string) (<-chan domain.CourierLocation, error)
}

// Hub keeps the connected clients.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	snapshots Snapshotter
	tracker   Tracker
	upgrader  websocket.Upgrader
	logger    logx.Logger
	gauge     prometheus.Gauge
	now       func() time.Time
}

// NewHub creates a Hub. allowedOrigins follows the CORS setting; "*" allows any.
func NewHub(snapshots Snapshotter, tracker Tracker, allowedOrigins []string, logger logx.Logger) *Hub {
	h := &Hub{
		clients:   make(map[string]*Client),
		snapshots: snapshots,
		tracker:   tracker,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// WithGauge attaches the connected clients gauge.
func (h *Hub) WithGauge(g prometheus.Gauge) *Hub {
	h.gauge = g
	return h
}

// AddClient registers c.
func (h *Hub) AddClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	if h.gauge != nil {
		h.gauge.Set(float64(len(h.clients)))
	}
}

// RemoveClient unregisters and closes the client with id.
func (h *Hub) RemoveClient(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	delete(h.clients, id)
	if h.gauge != nil {
		h.gauge.Set(float64(len(h.clients)))
	}
	h.mu.Unlock()

	if ok {
		c.close()
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish schedules a fresh snapshot for every client the change may affect.
func (h *Hub) Publish(_ context.Context, ev domain.DeliveryEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if affected(c.Viewer, ev) {
			c.markDirty()
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.RemoveClient(id)
	}
}

// ServeHTTP upgrades an authenticated request and serves the client until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s, ok := auth.SessionFrom(r.Context())
	if !ok || s.Phase() != domain.PhaseRoleKnown {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"role not selected","code":"forbidden"}`))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logx.Err(err))
		return
	}

	v := visibility.Viewer{ID: s.Account.AccountID(), Role: s.Role()}
	c := newClient(uuid.NewString(), v, conn, sendBuffer)
	c.query.PageSize = snapshotSize

	h.AddClient(c)
	h.logger.Info("live feed client connected",
		logx.String("client_id", c.ID),
		logx.String("account_id", v.ID),
		logx.String("role", string(v.Role)),
	)

	go h.writePump(c)
	go h.refreshLoop(c)
	c.markDirty()

	h.readPump(c)

	h.RemoveClient(c.ID)
	h.logger.Info("live feed client disconnected", logx.String("client_id", c.ID))
}

func (h *Hub) readPump(c *Client) {
	c.Conn.SetReadLimit(maxFrameSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in Inbound
		if err := c.Conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("live feed read failed", logx.String("client_id", c.ID), logx.Err(err))
			}
			return
		}
		h.handle(c, in)
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("live feed write failed", logx.String("client_id", c.ID), logx.Err(err))
				go h.RemoveClient(c.ID)
				return
			}
		case <-ticker.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				go h.RemoveClient(c.ID)
				return
			}
		}
	}
}

func (h *Hub) refreshLoop(c *Client) {
	for {
		select {
		case <-c.done:
			return
		case <-c.dirty:
			h.sendSnapshot(c)
		}
	}
}

func (h *Hub) sendSnapshot(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	page, err := h.snapshots.List(ctx, c.Viewer, c.currentQuery())
	if err != nil {
		h.logger.Warn("live feed snapshot failed", logx.String("client_id", c.ID), logx.Err(err))
		h.enqueue(c, Outbound{Type: TypeError, Error: err.Error(), Code: handlers.ErrorCode(err)})
		return
	}
	h.enqueue(c, Outbound{Type: TypeDeliveries, Deliveries: handlers.NewDeliveryResponses(c.Viewer, page.Items)})
}

// enqueue hands msg to the writer. A client whose buffer is full is dropped.
func (h *Hub) enqueue(c *Client, msg Outbound) {
	if msg.At.IsZero() {
		msg.At = h.now()
	}
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode live feed message failed", logx.Err(err))
		return
	}

	select {
	case <-c.done:
	case c.Send <- b:
	default:
		h.logger.Warn("dropping slow live feed client", logx.String("client_id", c.ID))
		go h.RemoveClient(c.ID)
	}
}

func (h *Hub) handle(c *Client, in Inbound) {
	switch in.Type {
	case TypeTrack:
		h.startTracking(c, strings.TrimSpace(in.CourierID))
	case TypeUntrack:
		c.untrack()
	case TypeRadius:
		if c.Viewer.Role != domain.RoleCourier {
			h.enqueue(c, Outbound{Type: TypeError, Error: "only couriers set a radius", Code: "forbidden"})
			return
		}
		var center *geo.Point
		if in.Lat != nil && in.Lng != nil {
			p := geo.Point{Lat: *in.Lat, Lng: *in.Lng}
			if !p.Valid() {
				h.enqueue(c, Outbound{Type: TypeError, Error: "coordinates out of range", Code: "invalid"})
				return
			}
			center = &p
		}
		c.setQuery(func(q *delivery.ListQuery) {
			q.Center = center
			q.RadiusKm = in.RadiusKm
		})
	case TypeFilter:
		statuses, err := delivery.ParseStatuses(strings.Join(in.Statuses, ","))
		if err != nil {
			h.enqueue(c, Outbound{Type: TypeError, Error: err.Error(), Code: handlers.ErrorCode(err)})
			return
		}
		c.setQuery(func(q *delivery.ListQuery) { q.Statuses = statuses })
	default:
		h.enqueue(c, Outbound{Type: TypeError, Error: "unknown message type " + in.Type, Code: "invalid"})
	}
}

func (h *Hub) startTracking(c *Client, courierID string) {
	if courierID == "" {
		h.enqueue(c, Outbound{Type: TypeError, Error: "courierId required", Code: "invalid"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := h.tracker.Subscribe(ctx, c.Viewer, courierID)
	if err != nil {
		cancel()
		h.enqueue(c, Outbound{Type: TypeError, Error: err.Error(), Code: handlers.ErrorCode(err)})
		return
	}
	seq, ok := c.track(courierID, cancel)
	if !ok {
		return
	}

	go func() {
		for loc := range ch {
			resp := handlers.NewLocationResponse(loc)
			h.enqueue(c, Outbound{Type: TypeLocation, Location: &resp})
		}
		// источник закрыл поток сам: право на отслеживание отозвано
		if ctx.Err() == nil && c.endTrack(seq) {
			h.enqueue(c, Outbound{Type: TypeError, Error: "tracking of " + courierID + " ended", Code: "forbidden"})
		}
	}()
}

// affected reports whether ev may change what v sees. Couriers care about
// every new or newly claimed delivery since either may alter their candidates.
func affected(v visibility.Viewer, ev domain.DeliveryEvent) bool {
	switch v.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleBusiness:
		return ev.Delivery.BusinessID == v.ID
	case domain.RoleCourier:
		return ev.Kind == domain.EventCreated || ev.Kind == domain.EventAccepted || visibility.Owns(v.ID, ev.Delivery)
	default:
		return false
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
