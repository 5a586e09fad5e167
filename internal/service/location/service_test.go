package location_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/service/location"
	"courier-dispatch/internal/visibility"
)

type memStore struct {
	mu    sync.Mutex
	slots map[string]domain.CourierLocation
	sets  int
	err   error
}

func newMemStore() *memStore { return &memStore{slots: map[string]domain.CourierLocation{}} }

func (m *memStore) Set(_ context.Context, loc domain.CourierLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sets++
	m.slots[loc.CourierID] = loc
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (domain.CourierLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loc, ok := m.slots[id]
	if !ok {
		return domain.CourierLocation{}, apperr.ErrNotFound
	}
	return loc, nil
}

func (m *memStore) All(context.Context) ([]domain.CourierLocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.CourierLocation, 0, len(m.slots))
	for _, l := range m.slots {
		out = append(out, l)
	}
	return out, nil
}

func (m *memStore) Nearby(_ context.Context, lat, lng, radiusKm float64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	center := geo.Point{Lat: lat, Lng: lng}
	var ids []string
	for id, l := range m.slots {
		if geo.DistanceKm(center, l.Point) <= radiusKm {
			ids = append(ids, id)
		}
	}
	// призрак без слота
	ids = append(ids, "ghost")
	return ids, nil
}

func (m *memStore) Subscribe(ctx context.Context, _ string) (<-chan domain.CourierLocation, error) {
	ch := make(chan domain.CourierLocation)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

type stubHistory struct {
	appended []domain.LocationPing
	err      error
}

func (s *stubHistory) Append(_ context.Context, p domain.LocationPing) error {
	s.appended = append(s.appended, p)
	return s.err
}

func (s *stubHistory) Recent(context.Context, string, int) ([]domain.LocationPing, error) {
	return s.appended, nil
}

type stubAssignments struct {
	fn func(businessID, courierID string) (bool, error)
}

func (s stubAssignments) HasActiveBetween(_ context.Context, businessID, courierID string) (bool, error) {
	return s.fn(businessID, courierID)
}

var (
	courier  = visibility.Viewer{ID: "c1", Role: domain.RoleCourier}
	business = visibility.Viewer{ID: "b1", Role: domain.RoleBusiness}
	admin    = visibility.Viewer{ID: "a1", Role: domain.RoleAdmin}
	here     = geo.Point{Lat: 32.08, Lng: 34.78}
)

func noAssignments() stubAssignments {
	return stubAssignments{fn: func(string, string) (bool, error) { return false, nil }}
}

func TestUpdate_OverwritesSlotAndSamplesHistoryCoarsely(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	hist := &stubHistory{}
	svc := location.NewService(store, hist, noAssignments(), time.Minute, logx.Nop())

	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	location.SetNow(svc, func() time.Time { return clock })

	for i := 0; i < 7; i++ {
		p := geo.Point{Lat: here.Lat + float64(i)*0.001, Lng: here.Lng}
		_, err := svc.Update(context.Background(), courier, location.UpdateInput{Point: p})
		require.NoError(t, err)
		clock = clock.Add(10 * time.Second)
	}

	got, err := store.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.InDelta(t, here.Lat+0.006, got.Point.Lat, 1e-9)
	assert.Equal(t, 7, store.sets)
	// samples at t=0s and t=60s
	assert.Len(t, hist.appended, 2)
}

func TestUpdate_KeepsDeviceEmissionTime(t *testing.T) {
	t.Parallel()

	svc := location.NewService(newMemStore(), nil, noAssignments(), 0, logx.Nop())
	emitted := time.Date(2025, 1, 1, 11, 59, 58, 0, time.FixedZone("IST", 2*3600))

	got, err := svc.Update(context.Background(), courier, location.UpdateInput{Point: here, EmittedAt: emitted})
	require.NoError(t, err)
	require.True(t, got.EmittedAt.Equal(emitted))
	require.Equal(t, time.UTC, got.EmittedAt.Location())
}

func TestUpdate_Rejects(t *testing.T) {
	t.Parallel()

	svc := location.NewService(newMemStore(), nil, noAssignments(), 0, logx.Nop())

	_, err := svc.Update(context.Background(), business, location.UpdateInput{Point: here})
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.Update(context.Background(), courier, location.UpdateInput{Point: geo.Point{Lat: 100}})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "lat", ve.Field)
}

func TestUpdate_HistoryFailureDoesNotFail(t *testing.T) {
	t.Parallel()

	hist := &stubHistory{err: errors.New("db down")}
	svc := location.NewService(newMemStore(), hist, noAssignments(), time.Minute, logx.Nop())

	_, err := svc.Update(context.Background(), courier, location.UpdateInput{Point: here})
	require.NoError(t, err)
}

func TestUpdate_CountsBySource(t *testing.T) {
	t.Parallel()

	updates := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "u"}, []string{"source"})
	svc := location.NewService(newMemStore(), nil, noAssignments(), 0, logx.Nop()).WithMetrics(updates)

	_, err := svc.Update(context.Background(), courier, location.UpdateInput{Point: here, Source: location.SourceMQTT})
	require.NoError(t, err)
	_, err = svc.Update(context.Background(), courier, location.UpdateInput{Point: here})
	require.NoError(t, err)

	require.Equal(t, 1.0, promtest.ToFloat64(updates.WithLabelValues("mqtt")))
	require.Equal(t, 1.0, promtest.ToFloat64(updates.WithLabelValues("http")))
}

func TestCurrent_Authorization(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	require.NoError(t, store.Set(context.Background(), domain.CourierLocation{CourierID: "c1", Point: here}))
	require.NoError(t, store.Set(context.Background(), domain.CourierLocation{CourierID: "c2", Point: here}))

	assignments := stubAssignments{fn: func(businessID, courierID string) (bool, error) {
		return businessID == "b1" && courierID == "c2", nil
	}}
	svc := location.NewService(store, nil, assignments, 0, logx.Nop())

	tests := []struct {
		name    string
		viewer  visibility.Viewer
		courier string
		wantErr error
	}{
		{"courier self", courier, "c1", nil},
		{"courier other", courier, "c2", apperr.ErrForbidden},
		{"business with active delivery", business, "c2", nil},
		{"business without active delivery", business, "c1", apperr.ErrForbidden},
		{"admin any", admin, "c1", nil},
		{"pending account", visibility.Viewer{ID: "x"}, "c1", apperr.ErrForbidden},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.Current(context.Background(), tt.viewer, tt.courier)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSubscribe_ClosesWithContext(t *testing.T) {
	t.Parallel()

	svc := location.NewService(newMemStore(), nil, noAssignments(), 0, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := svc.Subscribe(ctx, courier, "c1")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}

	_, err = svc.Subscribe(context.Background(), courier, "c2")
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestAll_AdminOnly(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	require.NoError(t, store.Set(context.Background(), domain.CourierLocation{CourierID: "c1", Point: here}))
	svc := location.NewService(store, &stubHistory{}, noAssignments(), 0, logx.Nop())

	all, err := svc.All(context.Background(), admin)
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = svc.All(context.Background(), business)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.History(context.Background(), courier, "c1", 10)
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestNearby(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, domain.CourierLocation{CourierID: "c1", Point: here}))
	require.NoError(t, store.Set(ctx, domain.CourierLocation{CourierID: "far", Point: geo.Point{Lat: 31.25, Lng: 34.79}}))
	svc := location.NewService(store, &stubHistory{}, noAssignments(), 0, logx.Nop())

	near, err := svc.Nearby(ctx, admin, here, 5)
	require.NoError(t, err)
	require.Len(t, near, 1)
	require.Equal(t, "c1", near[0].CourierID)

	_, err = svc.Nearby(ctx, business, here, 5)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.Nearby(ctx, admin, here, 0)
	require.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = svc.Nearby(ctx, admin, geo.Point{Lat: 91, Lng: 0}, 5)
	require.ErrorIs(t, err, apperr.ErrInvalid)
}

// feedStore lets a test push positions into an open subscription.
type feedStore struct {
	*memStore
	feed     chan domain.CourierLocation
	released chan struct{}
}

func newFeedStore() *feedStore {
	return &feedStore{
		memStore: newMemStore(),
		feed:     make(chan domain.CourierLocation),
		released: make(chan struct{}),
	}
}

func (f *feedStore) Subscribe(ctx context.Context, _ string) (<-chan domain.CourierLocation, error) {
	out := make(chan domain.CourierLocation)
	go func() {
		defer close(f.released)
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case loc := <-f.feed:
				select {
				case out <- loc:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func TestSubscribe_BusinessStreamEndsWhenDeliveryCompletes(t *testing.T) {
	t.Parallel()

	var active atomic.Bool
	active.Store(true)
	assignments := stubAssignments{fn: func(businessID, courierID string) (bool, error) {
		return businessID == "b1" && courierID == "c1" && active.Load(), nil
	}}
	store := newFeedStore()
	svc := location.NewService(store, nil, assignments, 0, logx.Nop())

	ch, err := svc.Subscribe(context.Background(), business, "c1")
	require.NoError(t, err)

	store.feed <- domain.CourierLocation{CourierID: "c1", Point: here}
	select {
	case loc := <-ch:
		require.Equal(t, "c1", loc.CourierID)
	case <-time.After(time.Second):
		t.Fatal("position not forwarded while the delivery is active")
	}

	// доставка завершена
	active.Store(false)
	_, err = svc.Current(context.Background(), business, "c1")
	require.ErrorIs(t, err, apperr.ErrForbidden)

	store.feed <- domain.CourierLocation{CourierID: "c1", Point: here}
	select {
	case loc, ok := <-ch:
		require.False(t, ok, "business received %+v after the delivery completed", loc)
	case <-time.After(time.Second):
		t.Fatal("stream stayed open after the delivery completed")
	}

	select {
	case <-store.released:
	case <-time.After(time.Second):
		t.Fatal("store subscription not released")
	}
}

func TestSubscribe_AdminStreamIsNotRechecked(t *testing.T) {
	t.Parallel()

	store := newFeedStore()
	calls := atomic.Int32{}
	assignments := stubAssignments{fn: func(string, string) (bool, error) {
		calls.Add(1)
		return false, nil
	}}
	svc := location.NewService(store, nil, assignments, 0, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := svc.Subscribe(ctx, admin, "c1")
	require.NoError(t, err)

	store.feed <- domain.CourierLocation{CourierID: "c1", Point: here}
	select {
	case loc := <-ch:
		require.Equal(t, "c1", loc.CourierID)
	case <-time.After(time.Second):
		t.Fatal("admin stream did not forward")
	}
	require.Zero(t, calls.Load())
}

func TestUpdate_EvictsIdleSamplingSlots(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	svc := location.NewService(store, &stubHistory{}, noAssignments(), time.Minute, logx.Nop())
	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	location.SetNow(svc, func() time.Time { return clock })

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := svc.Update(context.Background(), visibility.Viewer{ID: id, Role: domain.RoleCourier}, location.UpdateInput{Point: here})
		require.NoError(t, err)
	}
	require.Equal(t, 3, location.SampledCouriers(svc))

	clock = clock.Add(2 * time.Minute)
	_, err := svc.Update(context.Background(), courier, location.UpdateInput{Point: here})
	require.NoError(t, err)
	require.Equal(t, 1, location.SampledCouriers(svc))
}
