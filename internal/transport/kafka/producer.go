package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/IBM/sarama"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/logx"
)

var newSyncProducer = sarama.NewSyncProducer

// Producer publishes delivery events keyed by delivery id, so every change of
// one delivery lands in one partition in order.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   logx.Logger
}

// NewProducer returns nil when Kafka is not configured.
func NewProducer(logger logx.Logger, brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 || strings.TrimSpace(topic) == "" {
		return nil, nil
	}

	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	p, err := newSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewProducerFrom(p, topic, logger), nil
}

// NewProducerFrom wraps an existing sarama producer.
func NewProducerFrom(p sarama.SyncProducer, topic string, logger logx.Logger) *Producer {
	return &Producer{producer: p, topic: topic, logger: logger}
}

// Publish sends ev and waits for the broker acknowledgement.
func (p *Producer) Publish(ctx context.Context, ev domain.DeliveryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := json.Marshal(FromDomain(ev))
	if err != nil {
		return fmt.Errorf("encode delivery event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Delivery.ID.String()),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return fmt.Errorf("send delivery event: %w", err)
	}

	p.logger.Debug("delivery event published",
		logx.String("delivery_id", ev.Delivery.ID.String()),
		logx.String("kind", string(ev.Kind)),
		logx.Int("partition", int(partition)),
		logx.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.producer.Close()
}
