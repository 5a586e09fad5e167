package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/transport/kafka"
)

func TestNewProducer_NilWithoutBrokers(t *testing.T) {
	t.Parallel()

	p, err := kafka.NewProducer(logx.Nop(), nil, "deliveries")
	require.NoError(t, err)
	require.Nil(t, p)
	require.NoError(t, p.Close())
}

func TestProducer_PublishEncodesEvent(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	ev := domain.DeliveryEvent{
		Kind:     domain.EventCreated,
		Delivery: domain.Delivery{ID: id, BusinessID: "b1", Status: domain.StatusPosted, Item: "Pizza"},
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	mp := mocks.NewSyncProducer(t, cfg)
	mp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var dto kafka.EventDTO
		if err := json.Unmarshal(val, &dto); err != nil {
			return err
		}
		if dto.Delivery.ID != id.String() || dto.Kind != "created" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := kafka.NewProducerFrom(mp, "deliveries", logx.Nop())
	require.NoError(t, p.Publish(context.Background(), ev))
	require.NoError(t, p.Close())
}

func TestProducer_PublishFailure(t *testing.T) {
	t.Parallel()

	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := kafka.NewProducerFrom(mp, "deliveries", logx.Nop())
	err := p.Publish(context.Background(), domain.DeliveryEvent{Delivery: domain.Delivery{ID: uuid.New()}})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestProducer_PublishHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	mp := mocks.NewSyncProducer(t, nil)
	p := kafka.NewProducerFrom(mp, "deliveries", logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Publish(ctx, domain.DeliveryEvent{}), context.Canceled)
	require.NoError(t, p.Close())
}
