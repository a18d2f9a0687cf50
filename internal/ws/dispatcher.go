package ws

import (
	"github.com/rs/zerolog"

	"github.com/flicker/match-app/internal/protocol"
)

// MessageHandler handles one parsed client frame. msg is the concrete struct
// returned by protocol.ParseClientMessage.
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes client frames to handlers by type. Ping is
// answered internally; malformed and unsupported frames get an error frame.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	onPing   func(conn *Connection)
	log      zerolog.Logger
}

// NewMessageDispatcher creates an empty dispatcher.
func NewMessageDispatcher(logger zerolog.Logger) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		log:      logger,
	}
}

// Register associates a handler with a frame type, replacing any previous one.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// OnPing registers a hook run for every client ping, before the pong.
func (d *MessageDispatcher) OnPing(fn func(conn *Connection)) {
	d.onPing = fn
}

// Dispatch is the server's onMessage callback.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		d.log.Debug().Err(err).Str("conn_id", conn.ID).Msg("dispatch parse error")
		d.SendError(conn, "parse_error", "invalid message format")
		return
	}

	if msgType == protocol.TypePing {
		conn.Touch()
		if d.onPing != nil {
			d.onPing(conn)
		}
		d.send(conn, protocol.TypePong, protocol.PongMsg{})
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		d.log.Debug().Str("type", msgType).Str("conn_id", conn.ID).Msg("unsupported message type")
		d.SendError(conn, "unsupported_type", "unsupported message type")
		return
	}

	handler(conn, msg)
}

// SendError writes an error frame to conn. Failures are logged only.
func (d *MessageDispatcher) SendError(conn *Connection, code, message string) {
	d.send(conn, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}

func (d *MessageDispatcher) send(conn *Connection, msgType string, payload interface{}) {
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		d.log.Error().Err(err).Str("type", msgType).Msg("failed to build frame")
		return
	}
	if err := conn.Send(data); err != nil {
		d.log.Debug().Err(err).Str("conn_id", conn.ID).Str("type", msgType).Msg("failed to send frame")
	}
}
