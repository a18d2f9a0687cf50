package api

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/flicker/match-app/internal/apperr"
	"github.com/flicker/match-app/internal/protocol"
	"github.com/flicker/match-app/internal/ratelimit"
	"github.com/flicker/match-app/internal/ws"
)

// Publisher pushes a frame to a user's live connection.
type Publisher interface {
	Publish(uid, event string, payload interface{}) bool
}

// SocketHandlers serve the client frames that carry application actions.
type SocketHandlers struct {
	messenger  Messenger
	publisher  Publisher
	limiter    *ratelimit.Limiter
	dispatcher *ws.MessageDispatcher
	timeout    time.Duration
	log        zerolog.Logger
}

// RegisterSocketHandlers wires send_message and typing into dispatcher.
// limiter may be nil.
func RegisterSocketHandlers(dispatcher *ws.MessageDispatcher, messenger Messenger, publisher Publisher, limiter *ratelimit.Limiter, logger zerolog.Logger) *SocketHandlers {
	s := &SocketHandlers{
		messenger:  messenger,
		publisher:  publisher,
		limiter:    limiter,
		dispatcher: dispatcher,
		timeout:    5 * time.Second,
		log:        logger,
	}
	dispatcher.Register(protocol.TypeSendMessage, s.handleSendMessage)
	dispatcher.Register(protocol.TypeTyping, s.handleTyping)
	return s
}

func (s *SocketHandlers) handleSendMessage(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.SendMessageMsg)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.limiter != nil {
		if allowed, _ := s.limiter.Allow(ctx, conn.UserID, ratelimit.RuleMessage); !allowed {
			s.dispatcher.SendError(conn, "rate_limited", "too many requests")
			return
		}
	}

	sent, err := s.messenger.SendMessage(ctx, conn.UserID, m.ReceiverID, m.Content)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindStoreFailure {
			s.log.Error().Err(err).Str("user_id", conn.UserID).Msg("socket send failed")
		}
		s.dispatcher.SendError(conn, apperr.KindOf(err).String(), apperr.PublicMessage(err))
		return
	}

	data, err := protocol.NewServerMessage(protocol.TypeSent, protocol.NewMessageMsg{Message: sent})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to build ack")
		return
	}
	if err := conn.Send(data); err != nil {
		s.log.Debug().Err(err).Str("conn_id", conn.ID).Msg("failed to send ack")
	}
}

func (s *SocketHandlers) handleTyping(conn *ws.Connection, msg interface{}) {
	m, ok := msg.(protocol.TypingMsg)
	if !ok || m.To == "" || m.To == conn.UserID {
		return
	}
	s.publisher.Publish(m.To, protocol.TypeTyping, protocol.ServerTypingMsg{
		From:     conn.UserID,
		IsTyping: m.IsTyping,
	})
}
