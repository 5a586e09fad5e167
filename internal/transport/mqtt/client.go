// Package mqtt carries courier device positions over an MQTT broker.
package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/logx"
)

const (
	tokenTimeout    = 10 * time.Second
	disconnectQuiet = 250 // ms
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt: broker did not respond in time")

// MessageHandler receives one inbound message.
type MessageHandler func(topic string, payload []byte)

// Client is a thin paho wrapper with logging and bounded waits.
type Client struct {
	client paho.Client
	broker string
	logger logx.Logger
}

// NewClient builds a Client for cfg. It does not connect.
func NewClient(cfg config.MQTT, logger logx.Logger) *Client {
	if logger == nil {
		logger = logx.Nop()
	}
	log := logger.With(logx.String("component", "mqtt"), logx.String("broker", cfg.Broker))

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(tokenTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)

	opts.SetOnConnectHandler(func(paho.Client) {
		log.Info("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn("mqtt connection lost", logx.Err(err))
	})
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		log.Info("mqtt reconnecting")
	})

	return &Client{client: paho.NewClient(opts), broker: cfg.Broker, logger: log}
}

// Connect dials the broker.
func (c *Client) Connect() error {
	if err := wait(c.client.Connect()); err != nil {
		return fmt.Errorf("connect to %s: %w", c.broker, err)
	}
	return nil
}

// Subscribe registers handler for topic.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if err := wait(token); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	c.logger.Info("mqtt subscribed", logx.String("topic", topic), logx.Int("qos", int(qos)))
	return nil
}

// Publish sends payload to topic.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return wait(c.client.Publish(topic, qos, retained, payload))
}

// Unsubscribe drops the given topic filters.
func (c *Client) Unsubscribe(topics ...string) error {
	return wait(c.client.Unsubscribe(topics...))
}

// Disconnect closes the connection after a short quiesce.
func (c *Client) Disconnect() {
	c.client.Disconnect(disconnectQuiet)
	c.logger.Info("mqtt disconnected")
}

// IsConnected reports the connection state.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

func wait(t paho.Token) error {
	if !t.WaitTimeout(tokenTimeout) {
		return ErrTimeout
	}
	return t.Error()
}
