// Package protocol defines the frames exchanged over the real-time channel.
// Every frame is a JSON object whose "type" field discriminates the payload.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Client -> Server frame types.
const (
	TypePing        = "ping"
	TypeSendMessage = "send_message"
	TypeTyping      = "typing"
)

// Server -> Client frame types. NewMatch and NewMessage keep the event names
// the web client already listens for.
const (
	TypeConnected  = "connected"
	TypeNewMatch   = "newMatch"
	TypeNewMessage = "newMessage"
	TypeSent       = "messageSent"
	TypeError      = "error"
	TypePong       = "pong"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the frame type and the raw JSON for deferred decoding into
// a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full frame and extracts only the type field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Client -> Server
// ---------------------------------------------------------------------------

// PingMsg is an application-level keepalive.
type PingMsg struct {
	Type string `json:"type"`
}

// SendMessageMsg sends a direct message over the socket instead of HTTP.
type SendMessageMsg struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// TypingMsg tells the peer whether the sender is typing.
type TypingMsg struct {
	Type     string `json:"type"`
	To       string `json:"to"`
	IsTyping bool   `json:"isTyping"`
}

// ---------------------------------------------------------------------------
// Server -> Client
// ---------------------------------------------------------------------------

// ConnectedMsg confirms a successful handshake.
type ConnectedMsg struct {
	UserID       string `json:"userId"`
	ConnectionID string `json:"connectionId"`
}

// NewMessageMsg wraps a persisted message under its own key, the shape the
// web client expects. The messageSent ack reuses it.
type NewMessageMsg struct {
	Message interface{} `json:"message"`
}

// ServerTypingMsg relays a peer's typing indicator.
type ServerTypingMsg struct {
	From     string `json:"from"`
	IsTyping bool   `json:"isTyping"`
}

// ErrorMsg reports a rejected client frame.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg answers a ping.
type PongMsg struct{}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// ParseClientMessage decodes a raw frame into its typed client message. It
// returns the type string, the decoded struct and an error for malformed or
// unknown frames.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeSendMessage:
		var m SendMessageMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeTyping:
		var m TypingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown client message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewServerMessage encodes payload as a JSON object and injects msgType
// under the "type" key. The payload must marshal to a JSON object.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	m := map[string]json.RawMessage{}
	if string(raw) != "null" {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("protocol: payload is not a JSON object: %w", err)
		}
	}

	typ, _ := json.Marshal(msgType)
	m["type"] = typ

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal server message: %w", err)
	}
	return out, nil
}
