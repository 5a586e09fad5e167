package livefeed

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"courier-dispatch/internal/service/delivery"
	"courier-dispatch/internal/visibility"
)

// Client is one connected viewer.
type Client struct {
	ID     string
	Viewer visibility.Viewer
	Conn   *websocket.Conn
	Send   chan []byte

	dirty chan struct{}
	done  chan struct{}
	once  sync.Once

	mu          sync.Mutex
	query       delivery.ListQuery
	stopTrack   context.CancelFunc
	trackingFor string
	trackSeq    uint64
	closed      bool
}

func newClient(id string, v visibility.Viewer, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		ID:     id,
		Viewer: v,
		Conn:   conn,
		Send:   make(chan []byte, buffer),
		dirty:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// markDirty schedules a snapshot. Pending marks coalesce.
func (c *Client) markDirty() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

func (c *Client) currentQuery() delivery.ListQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

func (c *Client) setQuery(fn func(q *delivery.ListQuery)) {
	c.mu.Lock()
	fn(&c.query)
	c.mu.Unlock()
	c.markDirty()
}

// track replaces the current tracking subscription and returns its sequence.
// On a closed client cancel runs at once and ok is false.
func (c *Client) track(courierID string, cancel context.CancelFunc) (seq uint64, ok bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return 0, false
	}
	prev := c.stopTrack
	c.stopTrack, c.trackingFor = cancel, courierID
	c.trackSeq++
	seq = c.trackSeq
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
	return seq, true
}

func (c *Client) untrack() {
	c.mu.Lock()
	prev := c.stopTrack
	c.stopTrack, c.trackingFor = nil, ""
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
}

// endTrack drops subscription seq if it is still the current one.
func (c *Client) endTrack(seq uint64) bool {
	c.mu.Lock()
	if c.trackSeq != seq || c.stopTrack == nil {
		c.mu.Unlock()
		return false
	}
	stop := c.stopTrack
	c.stopTrack, c.trackingFor = nil, ""
	c.mu.Unlock()
	stop()
	return true
}

// close is idempotent.
func (c *Client) close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		close(c.done)
		c.untrack()
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
	})
}
