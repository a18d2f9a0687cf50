// Package chat persists direct messages between users and notifies the
// receiver of each one.
package chat

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/flicker/match-app/internal/apperr"
	"github.com/flicker/match-app/internal/jobs"
	"github.com/flicker/match-app/internal/metrics"
	"github.com/flicker/match-app/internal/models"
	"github.com/flicker/match-app/internal/notify"
)

// Users resolves the profiles on either end of a message.
type Users interface {
	Get(ctx context.Context, id string) (*models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// Notifier delivers message events.
type Notifier interface {
	Notify(ctx context.Context, target string, ev notify.Event)
}

// Service sends and lists messages.
type Service struct {
	store    Store
	users    Users
	notifier Notifier
	log      zerolog.Logger
}

// NewService creates a Service.
func NewService(store Store, users Users, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{store: store, users: users, notifier: notifier, log: logger}
}

// SendMessage validates and stores a message from sender to receiver, then
// notifies the receiver. The result reflects only the store write; delivery
// problems are logged by the dispatcher.
func (s *Service) SendMessage(ctx context.Context, sender, receiver, content string) (models.Message, error) {
	if err := ValidateMessage(content); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return models.Message{}, err
	}
	if sender == receiver {
		return models.Message{}, apperr.InvalidAction("cannot message yourself")
	}

	to, err := s.users.Get(ctx, receiver)
	if err != nil {
		return models.Message{}, err
	}
	from, err := s.users.Get(ctx, sender)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Message{}, apperr.Unauthenticated("user not found")
	}
	if err != nil {
		return models.Message{}, err
	}

	msg, err := s.store.Create(ctx, sender, receiver, content)
	if err != nil {
		return models.Message{}, err
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()

	s.notifier.Notify(ctx, receiver, notify.MessageEvent{
		Message: msg,
		Email: jobs.MessageEmail{
			To:         to.Email,
			SenderName: from.Name,
			Content:    content,
		},
	})
	return msg, nil
}

// Conversation returns the messages between actor and other, oldest first.
func (s *Service) Conversation(ctx context.Context, actor, other string) ([]models.Message, error) {
	ok, err := s.users.Exists(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Unauthenticated("user not found")
	}
	return s.store.Conversation(ctx, actor, other)
}
