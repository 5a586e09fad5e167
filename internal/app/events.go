package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/livefeed"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/service/delivery"
	"courier-dispatch/internal/transport/kafka"
)

// relay fans delivery events out to in-process sinks. It lets the delivery
// service publish before the live feed hub that depends on it exists.
type relay struct {
	mu    sync.RWMutex
	sinks []delivery.Publisher
}

func newRelay() *relay { return &relay{} }

func (r *relay) attach(p delivery.Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, p)
}

// Publish implements delivery.Publisher.
func (r *relay) Publish(ctx context.Context, ev domain.DeliveryEvent) error {
	r.mu.RLock()
	sinks := append([]delivery.Publisher(nil), r.sinks...)
	r.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newKafkaProducer(cfg *config.Config, logger logx.Logger) (*kafka.Producer, error) {
	return kafka.NewProducer(logger, cfg.Kafka.Brokers, cfg.Kafka.Topic)
}

// newPublisher sends through Kafka when brokers are configured, otherwise in process.
func newPublisher(producer *kafka.Producer, r *relay) delivery.Publisher {
	if producer != nil {
		return producer
	}
	return r
}

// newKafkaConsumer feeds the change stream into the hub. Every API instance
// needs every event for its own sockets, so the group id is made per host.
func newKafkaConsumer(cfg *config.Config, logger logx.Logger, hub *livefeed.Hub) (*kafka.Consumer, error) {
	if !cfg.Kafka.Enabled() {
		return nil, nil
	}
	return kafka.NewConsumer(logger, cfg.Kafka.Brokers, instanceGroupID(cfg.Kafka.GroupID), cfg.Kafka.Topic, hub.Publish)
}

var hostname = os.Hostname

func instanceGroupID(base string) string {
	host, err := hostname()
	if err != nil || host == "" {
		return base
	}
	return fmt.Sprintf("%s-%s", base, host)
}
