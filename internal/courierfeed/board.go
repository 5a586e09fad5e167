// Package courierfeed keeps a courier's candidate delivery list in sync with
// its position and chosen radius.
package courierfeed

import (
	"sort"
	"sync"

	"courier-dispatch/internal/http/handlers"
)

// Board is the locally held list of deliveries. Applying the same snapshot twice
// leaves the rows as they were; Version still advances on every Replace.
type Board struct {
	mu      sync.RWMutex
	byID    map[string]handlers.DeliveryResponse
	version uint64
}

// NewBoard returns an empty Board.
func NewBoard() *Board {
	return &Board{byID: make(map[string]handlers.DeliveryResponse)}
}

// Replace swaps the whole list for items and bumps Version even when nothing differs.
func (b *Board) Replace(items []handlers.DeliveryResponse) {
	next := make(map[string]handlers.DeliveryResponse, len(items))
	for _, it := range items {
		next[it.ID] = it
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.byID = next
	b.version++
}

// Upsert stores one server-confirmed row.
func (b *Board) Upsert(item handlers.DeliveryResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byID[item.ID] = item
	b.version++
}

// Get returns the row with id.
func (b *Board) Get(id string) (handlers.DeliveryResponse, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	it, ok := b.byID[id]
	return it, ok
}

// Len returns the number of rows.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}

// Version increments on every change.
func (b *Board) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Items returns rows newest first, ties broken by id.
func (b *Board) Items() []handlers.DeliveryResponse {
	b.mu.RLock()
	out := make([]handlers.DeliveryResponse, 0, len(b.byID))
	for _, it := range b.byID {
		out = append(out, it)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// WithAction returns rows offering action, in Items order.
func (b *Board) WithAction(action string) []handlers.DeliveryResponse {
	var out []handlers.DeliveryResponse
	for _, it := range b.Items() {
		for _, a := range it.Actions {
			if a == action {
				out = append(out, it)
				break
			}
		}
	}
	return out
}
