package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/logx"
	"courier-dispatch/internal/service/location"
	"courier-dispatch/internal/visibility"
)

const handleTimeout = 3 * time.Second

// LocationPayload is the device message body.
type LocationPayload struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	EmittedAt time.Time `json:"emitted_at"`
}

type locationUpdater interface {
	Update(ctx context.Context, v visibility.Viewer, in location.UpdateInput) (domain.CourierLocation, error)
}

type subscriber interface {
	Connect() error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topics ...string) error
	Disconnect()
}

// Ingestor feeds device positions from the broker into the location service.
type Ingestor struct {
	client  subscriber
	updates locationUpdater
	topic   string
	qos     byte
	logger  logx.Logger

	mu      sync.Mutex
	started bool
}

// NewIngestor wires a subscriber to the location service.
func NewIngestor(client subscriber, updates locationUpdater, topic string, qos byte, logger logx.Logger) (*Ingestor, error) {
	if client == nil {
		return nil, errors.New("mqtt client is required")
	}
	if updates == nil {
		return nil, errors.New("location updater is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("location topic is empty")
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Ingestor{client: client, updates: updates, topic: topic, qos: qos, logger: logger}, nil
}

// Start connects and subscribes. Calling it twice is a no-op.
func (i *Ingestor) Start() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.started {
		return nil
	}
	if err := i.client.Connect(); err != nil {
		return err
	}
	if err := i.client.Subscribe(i.topic, i.qos, i.handle); err != nil {
		i.client.Disconnect()
		return err
	}
	i.started = true
	i.logger.Info("listening for courier positions", logx.String("topic", i.topic))
	return nil
}

// Stop unsubscribes and disconnects.
func (i *Ingestor) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.started {
		return
	}
	if err := i.client.Unsubscribe(i.topic); err != nil {
		i.logger.Warn("mqtt unsubscribe failed", logx.Err(err))
	}
	i.client.Disconnect()
	i.started = false
}

func (i *Ingestor) handle(topic string, payload []byte) {
	courierID, err := CourierFromTopic(topic)
	if err != nil {
		i.logger.Warn("mqtt bad topic", logx.String("topic", topic), logx.Err(err))
		return
	}
	p, err := ParseLocation(payload)
	if err != nil {
		i.logger.Warn("mqtt bad payload", logx.String("courier_id", courierID), logx.Err(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	_, err = i.updates.Update(ctx,
		visibility.Viewer{ID: courierID, Role: domain.RoleCourier},
		location.UpdateInput{Point: geo.Point{Lat: p.Lat, Lng: p.Lng}, EmittedAt: p.EmittedAt, Source: location.SourceMQTT},
	)
	if err != nil {
		i.logger.Warn("mqtt position rejected", logx.String("courier_id", courierID), logx.Err(err))
	}
}

// CourierFromTopic extracts the id from couriers/{id}/location.
func CourierFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != "couriers" || parts[2] != "location" {
		return "", fmt.Errorf("unexpected topic %q", topic)
	}
	if strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("empty courier id in %q", topic)
	}
	return parts[1], nil
}

// LocationTopic returns the publish topic for one courier.
func LocationTopic(courierID string) string {
	return "couriers/" + courierID + "/location"
}

// ParseLocation decodes and range-checks a device message.
func ParseLocation(payload []byte) (LocationPayload, error) {
	var p LocationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return LocationPayload{}, fmt.Errorf("decode location: %w", err)
	}
	if !(geo.Point{Lat: p.Lat, Lng: p.Lng}).Valid() {
		return LocationPayload{}, fmt.Errorf("coordinates out of range: %v,%v", p.Lat, p.Lng)
	}
	return p, nil
}

// PublishLocation sends one position for courierID. Used by device simulators.
func PublishLocation(c *Client, qos byte, courierID string, pt geo.Point, at time.Time) error {
	body, err := json.Marshal(LocationPayload{Lat: pt.Lat, Lng: pt.Lng, EmittedAt: at.UTC()})
	if err != nil {
		return err
	}
	return c.Publish(LocationTopic(courierID), qos, false, body)
}
