package presence

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/flicker/match-app/internal/metrics"
	"github.com/flicker/match-app/internal/protocol"
	"github.com/flicker/match-app/internal/ws"
)

// Relay forwards frames to the instance that holds a user.
type Relay interface {
	Forward(server, uid string, frame []byte) error
}

// RelaySource delivers frames other instances routed to this one.
type RelaySource interface {
	SubscribeDeliveries(server string, handler func(uid string, frame []byte)) error
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithDirectory enables cross-instance presence records.
func WithDirectory(d Directory) Option {
	return func(g *Gateway) { g.directory = d }
}

// WithRelay enables forwarding to other instances. It only takes effect
// together with WithDirectory.
func WithRelay(r Relay) Option {
	return func(g *Gateway) { g.relay = r }
}

// WithTimeout bounds each Directory call.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// Gateway pushes events to connected users.
type Gateway struct {
	registry  *Registry
	directory Directory
	relay     Relay
	timeout   time.Duration
	log       zerolog.Logger
}

// NewGateway creates a Gateway over registry.
func NewGateway(registry *Registry, logger zerolog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		registry: registry,
		timeout:  2 * time.Second,
		log:      logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Registry returns the gateway's connection registry.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Publish sends event with payload to uid. It returns true when the frame
// was written to a local connection or handed to the relay, and false when
// the user is offline, the payload cannot be encoded or the write fails.
// It never panics and never returns an error.
func (g *Gateway) Publish(uid, event string, payload interface{}) (delivered bool) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Str("user_id", uid).Str("event", event).Msg("publish panicked")
			metrics.PublishTotal.WithLabelValues(event, metrics.OutcomeFailed).Inc()
			delivered = false
		}
	}()

	frame, err := protocol.NewServerMessage(event, payload)
	if err != nil {
		g.log.Error().Err(err).Str("user_id", uid).Str("event", event).Msg("failed to encode event")
		metrics.PublishTotal.WithLabelValues(event, metrics.OutcomeFailed).Inc()
		return false
	}

	if conn, ok := g.registry.Lookup(uid); ok {
		return g.write(conn, uid, event, frame)
	}

	if g.forward(uid, event, frame) {
		metrics.PublishTotal.WithLabelValues(event, metrics.OutcomeRelayed).Inc()
		return true
	}

	metrics.PublishTotal.WithLabelValues(event, metrics.OutcomeOffline).Inc()
	return false
}

// Deliver writes an already-encoded frame to uid's local connection. It is
// the receiving end of the relay.
func (g *Gateway) Deliver(uid string, frame []byte) bool {
	conn, ok := g.registry.Lookup(uid)
	if !ok {
		g.log.Debug().Str("user_id", uid).Msg("relayed frame for user no longer connected")
		return false
	}
	return g.write(conn, uid, "relay", frame)
}

func (g *Gateway) write(conn Conn, uid, event string, frame []byte) bool {
	if err := conn.Send(frame); err != nil {
		g.log.Warn().Err(err).Str("user_id", uid).Str("event", event).Msg("failed to write event")
		metrics.PublishTotal.WithLabelValues(event, metrics.OutcomeFailed).Inc()
		return false
	}
	metrics.PublishTotal.WithLabelValues(event, metrics.OutcomeDelivered).Inc()
	return true
}

// forward hands frame to the instance that holds uid, if that is another one.
func (g *Gateway) forward(uid, event string, frame []byte) bool {
	if g.directory == nil || g.relay == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	server, ok, err := g.directory.Locate(ctx, uid)
	if err != nil {
		g.log.Warn().Err(err).Str("user_id", uid).Msg("presence lookup failed")
		return false
	}
	if !ok || server == g.directory.Server() {
		return false
	}

	if err := g.relay.Forward(server, uid, frame); err != nil {
		g.log.Warn().Err(err).Str("user_id", uid).Str("server", server).Str("event", event).Msg("relay failed")
		return false
	}
	return true
}

// Attach wires the gateway into the transport: connections register on
// connect and release on disconnect, and client pings refresh presence.
func (g *Gateway) Attach(server *ws.Server, dispatcher *ws.MessageDispatcher) {
	server.SetOnConnect(g.connected)
	server.SetOnDisconnect(g.disconnected)
	dispatcher.OnPing(g.pinged)
}

// StartRelay subscribes to frames other instances route here.
func (g *Gateway) StartRelay(source RelaySource) error {
	if g.directory == nil {
		return nil
	}
	return source.SubscribeDeliveries(g.directory.Server(), func(uid string, frame []byte) {
		g.Deliver(uid, frame)
	})
}

func (g *Gateway) connected(c *ws.Connection) {
	g.registry.Register(c.UserID, c)
	if g.directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	if err := g.directory.Claim(ctx, c.UserID); err != nil {
		g.log.Warn().Err(err).Str("user_id", c.UserID).Msg("failed to record presence")
	}
}

func (g *Gateway) disconnected(c *ws.Connection) {
	if !g.registry.Release(c.UserID, c) || g.directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	if err := g.directory.Release(ctx, c.UserID); err != nil {
		g.log.Warn().Err(err).Str("user_id", c.UserID).Msg("failed to clear presence")
	}
}

func (g *Gateway) pinged(c *ws.Connection) {
	if g.directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()
	if err := g.directory.Refresh(ctx, c.UserID); err != nil {
		g.log.Debug().Err(err).Str("user_id", c.UserID).Msg("failed to refresh presence")
	}
}
