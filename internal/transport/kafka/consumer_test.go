package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	testlog "courier-dispatch/internal/testutil"
)

type fakeGroup struct{}

func (fakeGroup) Consume(context.Context, []string, sarama.ConsumerGroupHandler) error { return nil }
func (fakeGroup) Errors() <-chan error {
	ch := make(chan error)
	close(ch)
	return ch
}
func (fakeGroup) Close() error              { return nil }
func (fakeGroup) Pause(map[string][]int32)  {}
func (fakeGroup) Resume(map[string][]int32) {}
func (fakeGroup) PauseAll()                 {}
func (fakeGroup) ResumeAll()                {}

type fakeSession struct {
	ctx context.Context

	mu     sync.Mutex
	marked int
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(*sarama.ConsumerMessage, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked++
}

func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "" }
func (s *fakeSession) GenerationID() int32                      { return 0 }

func (s *fakeSession) MarkedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marked
}

type fakeClaim struct {
	ch chan *sarama.ConsumerMessage
}

func (c fakeClaim) Topic() string              { return "t" }
func (c fakeClaim) Partition() int32           { return 0 }
func (c fakeClaim) InitialOffset() int64       { return 0 }
func (c fakeClaim) HighWaterMarkOffset() int64 { return 0 }
func (c fakeClaim) Messages() <-chan *sarama.ConsumerMessage {
	return c.ch
}

func sampleEvent() domain.DeliveryEvent {
	courier := "c1"
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return domain.DeliveryEvent{
		Kind:       domain.EventAccepted,
		OccurredAt: at,
		Delivery: domain.Delivery{
			ID:                  uuid.MustParse("0b6f8a3e-58a4-4a55-9d3c-6f0a6c1b2d11"),
			BusinessID:          "b1",
			BusinessName:        "Shop",
			BusinessLocation:    geo.Point{Lat: 32.08, Lng: 34.78},
			DestinationLocation: geo.Point{Lat: 32.1, Lng: 34.8},
			Item:                "Pizza",
			Payment:             20,
			Status:              domain.StatusAccepted,
			AssignedTo:          &courier,
			CreatedAt:           at.Add(-time.Hour),
			UpdatedAt:           at,
			AcceptedAt:          &at,
		},
	}
}

func feed(values ...[]byte) fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(values))
	for _, v := range values {
		ch <- &sarama.ConsumerMessage{Value: v}
	}
	close(ch)
	return fakeClaim{ch: ch}
}

func TestNewConsumer_SkipsWhenNoKafkaConfig(t *testing.T) {
	t.Parallel()

	rec := testlog.New()

	got, err := NewConsumer(rec.Logger(), nil, "gid", "topic", func(context.Context, domain.DeliveryEvent) error { return nil })
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = NewConsumer(rec.Logger(), []string{"b:9092"}, "", "topic", nil)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = NewConsumer(rec.Logger(), []string{"b:9092"}, "gid", "   ", nil)
	require.NoError(t, err)
	require.Nil(t, got)

	// nil consumer is safe to run and close
	require.NoError(t, got.Run(context.Background()))
	require.NoError(t, got.Close())
}

func TestNewConsumer_ReturnsErrorWhenSaramaFails(t *testing.T) {
	orig := newConsumerGroup
	t.Cleanup(func() { newConsumerGroup = orig })

	sentinel := errors.New("boom")
	newConsumerGroup = func(_ []string, _ string, _ *sarama.Config) (sarama.ConsumerGroup, error) {
		return nil, sentinel
	}

	rec := testlog.New()
	got, err := NewConsumer(rec.Logger(), []string{"b:9092"}, "gid", "topic", nil)
	require.ErrorIs(t, err, sentinel)
	require.Nil(t, got)
}

func TestRun_StopsWithContext(t *testing.T) {
	t.Parallel()

	c := &Consumer{group: fakeGroup{}, topic: "t", logger: testlog.New().Logger()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, c.Run(ctx), context.Canceled)
}

func TestConsumeClaim_BadJSON_Skips(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	c := &Consumer{
		logger: rec.Logger(),
		handler: func(context.Context, domain.DeliveryEvent) error {
			t.Fatal("handler must not be called")
			return nil
		},
	}
	h := &groupHandler{c: c}

	sess := &fakeSession{ctx: context.Background()}
	err := h.ConsumeClaim(sess, feed([]byte("not-json")))
	require.NoError(t, err)
	require.Equal(t, 1, sess.MarkedCount())
	require.True(t, rec.Has("kafka bad json"))
}

func TestConsumeClaim_InvalidEvent_Skips(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	calls := 0
	c := &Consumer{
		logger: rec.Logger(),
		handler: func(context.Context, domain.DeliveryEvent) error {
			calls++
			return nil
		},
	}
	h := &groupHandler{c: c}

	bad := FromDomain(sampleEvent())
	bad.Delivery.ID = "   "
	b, _ := json.Marshal(bad)

	sess := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(sess, feed(b)))
	require.Equal(t, 1, sess.MarkedCount())
	require.Equal(t, 0, calls)
	require.True(t, rec.Has("kafka invalid event"))
}

func TestConsumeClaim_HandlerError_SkipsButMarks(t *testing.T) {
	t.Parallel()

	rec := testlog.New()
	c := &Consumer{
		logger: rec.Logger(),
		handler: func(context.Context, domain.DeliveryEvent) error {
			return errors.New("boom")
		},
	}
	h := &groupHandler{c: c}

	b, _ := json.Marshal(FromDomain(sampleEvent()))

	sess := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(sess, feed(b)))
	require.Equal(t, 1, sess.MarkedCount())
	require.True(t, rec.Has("kafka handle failed, skipping message"))
}

func TestConsumeClaim_Success_DeliversFullState(t *testing.T) {
	t.Parallel()

	want := sampleEvent()
	var got []domain.DeliveryEvent
	c := &Consumer{
		logger: testlog.New().Logger(),
		handler: func(_ context.Context, ev domain.DeliveryEvent) error {
			got = append(got, ev)
			return nil
		},
	}
	h := &groupHandler{c: c}

	b, _ := json.Marshal(FromDomain(want))

	sess := &fakeSession{ctx: context.Background()}
	require.NoError(t, h.ConsumeClaim(sess, feed(b, b)))
	require.Equal(t, 2, sess.MarkedCount())
	require.Len(t, got, 2)
	require.Equal(t, want.Delivery.ID, got[0].Delivery.ID)
	require.Equal(t, domain.StatusAccepted, got[0].Delivery.Status)
	require.Equal(t, "c1", *got[0].Delivery.AssignedTo)
	require.True(t, want.OccurredAt.Equal(got[0].OccurredAt))
}

func TestToDomain_DefaultsKindFromStatus(t *testing.T) {
	t.Parallel()

	dto := FromDomain(sampleEvent())
	dto.Kind = ""
	dto.Delivery.Status = " Picked_Up "

	ev, err := ToDomain(dto)
	require.NoError(t, err)
	require.Equal(t, domain.EventPickedUp, ev.Kind)

	dto.Delivery.Status = "lost"
	_, err = ToDomain(dto)
	var perm PermanentError
	require.ErrorAs(t, err, &perm)
}
