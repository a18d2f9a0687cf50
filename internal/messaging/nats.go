// Package messaging provides a NATS client wrapper for relaying real-time
// frames between gateway instances. Each instance subscribes to its own
// delivery subject and receives the frames other instances route to it.
package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// SubjectPresenceDeliver is the delivery subject prefix; the full subject is
// presence.deliver.<server>.
const SubjectPresenceDeliver = "presence.deliver"

// DeliverySubject returns the subject the named server listens on.
func DeliverySubject(server string) string {
	return SubjectPresenceDeliver + "." + server
}

// Delivery is one relayed frame addressed to a user connected elsewhere.
type Delivery struct {
	UserID string          `json:"user_id"`
	Frame  json.RawMessage `json:"frame"`
}

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	log  zerolog.Logger
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "flicker",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, logger zerolog.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats connected")

	return &NATSClient{
		conn: nc,
		log:  logger,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// Forward relays a ready-to-write frame to the instance holding userID.
func (c *NATSClient) Forward(server, userID string, frame []byte) error {
	data, err := EncodeDelivery(userID, frame)
	if err != nil {
		return err
	}
	return c.Publish(DeliverySubject(server), data)
}

// SubscribeDeliveries passes every frame addressed to server to handler.
// Malformed deliveries are logged and skipped.
func (c *NATSClient) SubscribeDeliveries(server string, handler func(userID string, frame []byte)) error {
	return c.Subscribe(DeliverySubject(server), func(msg *nats.Msg) {
		d, err := DecodeDelivery(msg.Data)
		if err != nil {
			c.log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed delivery")
			return
		}
		handler(d.UserID, d.Frame)
	})
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.log.Warn().Err(err).Str("subject", subject).Msg("nats drain failed")
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.log.Warn().Err(err).Msg("nats connection drain failed")
	}

	c.log.Info().Msg("nats client closed")
}

// EncodeDelivery builds the relay payload. frame must be a JSON document.
func EncodeDelivery(userID string, frame []byte) ([]byte, error) {
	if !json.Valid(frame) {
		return nil, fmt.Errorf("messaging: frame for %s is not valid JSON", userID)
	}
	return json.Marshal(Delivery{UserID: userID, Frame: frame})
}

// DecodeDelivery parses a relay payload.
func DecodeDelivery(data []byte) (Delivery, error) {
	var d Delivery
	if err := json.Unmarshal(data, &d); err != nil {
		return Delivery{}, fmt.Errorf("messaging: failed to decode delivery: %w", err)
	}
	if d.UserID == "" || len(d.Frame) == 0 {
		return Delivery{}, fmt.Errorf("messaging: delivery missing user_id or frame")
	}
	return d, nil
}
