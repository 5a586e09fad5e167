package courierfeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/client"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/http/handlers"
)

type listCall struct {
	center geo.Point
	radius float64
}

type fakeLister struct {
	mu    sync.Mutex
	calls []listCall
	// gate, when set for a latitude, blocks that call until closed
	gates map[float64]chan struct{}
	err   error
}

func (f *fakeLister) ListDeliveries(ctx context.Context, p client.ListParams) (client.DeliveryPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, listCall{center: *p.Center, radius: p.RadiusKm})
	gate := f.gates[p.Center.Lat]
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return client.DeliveryPage{}, ctx.Err()
		}
	}
	if err != nil {
		return client.DeliveryPage{}, err
	}
	// the row id encodes which request produced it
	id := "at-" + geoKey(p.Center.Lat)
	return client.DeliveryPage{Items: []handlers.DeliveryResponse{{ID: id}}}, nil
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLister) call(i int) listCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func geoKey(lat float64) string {
	switch lat {
	case 32.0:
		return "a"
	case 32.1:
		return "b"
	default:
		return "x"
	}
}

func fastConfig() Config {
	return Config{
		MoveThresholdKm: 0.1,
		Debounce:        20 * time.Millisecond,
		MinInterval:     time.Millisecond,
		RadiusKm:        5,
	}
}

func startWatcher(t *testing.T, l Lister, cfg Config) (*Watcher, *Board) {
	t.Helper()

	board := NewBoard()
	w, err := NewWatcher(l, board, cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w, board
}

func TestWatcher_CoalescesBurstIntoOneFetch(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.Debounce = 50 * time.Millisecond
	l := &fakeLister{}
	w, board := startWatcher(t, l, cfg)

	// a burst of ticks well beyond the threshold from each other
	for i := 0; i < 5; i++ {
		w.Position(geo.Point{Lat: 32.0 + float64(i)*0.01, Lng: 34.8})
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return board.Len() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, l.callCount())
	require.InDelta(t, 32.04, l.call(0).center.Lat, 1e-9)
}

func TestWatcher_IgnoresJitterBelowThreshold(t *testing.T) {
	t.Parallel()

	l := &fakeLister{}
	w, _ := startWatcher(t, l, fastConfig())

	w.Position(geo.Point{Lat: 32.0, Lng: 34.8})
	require.Eventually(t, func() bool { return l.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// ~11 m north
	w.Position(geo.Point{Lat: 32.0001, Lng: 34.8})
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 1, l.callCount())

	// ~1.1 km north
	w.Position(geo.Point{Lat: 32.01, Lng: 34.8})
	require.Eventually(t, func() bool { return l.callCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestWatcher_RadiusChangeRefetchesWithoutMoving(t *testing.T) {
	t.Parallel()

	l := &fakeLister{}
	w, _ := startWatcher(t, l, fastConfig())

	w.Position(geo.Point{Lat: 32.0, Lng: 34.8})
	require.Eventually(t, func() bool { return l.callCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, w.SetZoom(12))
	require.Eventually(t, func() bool { return l.callCount() == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 10.0, l.call(1).radius)
	require.Equal(t, 10.0, w.Radius())

	require.Error(t, w.SetRadius(0))
}

func TestWatcher_LastResponseWinsByStartOrder(t *testing.T) {
	t.Parallel()

	slow := make(chan struct{})
	l := &fakeLister{gates: map[float64]chan struct{}{32.0: slow}}
	w, board := startWatcher(t, l, fastConfig())

	var mu sync.Mutex
	var applied []uint64
	w.OnApply(func(seq uint64) {
		mu.Lock()
		applied = append(applied, seq)
		mu.Unlock()
	})

	w.Position(geo.Point{Lat: 32.0, Lng: 34.8})
	require.Eventually(t, func() bool { return l.callCount() == 1 }, time.Second, 5*time.Millisecond)

	w.Position(geo.Point{Lat: 32.1, Lng: 34.8})
	require.Eventually(t, func() bool {
		_, ok := board.Get("at-b")
		return ok
	}, time.Second, 5*time.Millisecond)

	// the first request finishes last and must be discarded
	close(slow)
	time.Sleep(50 * time.Millisecond)

	_, stale := board.Get("at-a")
	require.False(t, stale)
	_, fresh := board.Get("at-b")
	require.True(t, fresh)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []uint64{2}, applied)
}

func TestWatcher_FailedFetchAllowsRetry(t *testing.T) {
	t.Parallel()

	l := &fakeLister{err: errors.New("boom")}
	w, board := startWatcher(t, l, fastConfig())

	w.Position(geo.Point{Lat: 32.0, Lng: 34.8})
	require.Eventually(t, func() bool { return l.callCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Zero(t, board.Len())
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.anchor == nil
	}, time.Second, 5*time.Millisecond)

	l.mu.Lock()
	l.err = nil
	l.mu.Unlock()

	// same position: without the failed anchor reset this tick would be ignored
	w.Position(geo.Point{Lat: 32.0, Lng: 34.8})
	require.Eventually(t, func() bool { return board.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestNewWatcher_Defaults(t *testing.T) {
	t.Parallel()

	w, err := NewWatcher(&fakeLister{}, NewBoard(), Config{}, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().RadiusKm, w.Radius())

	_, err = NewWatcher(nil, NewBoard(), Config{}, nil)
	require.Error(t, err)
}
