package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flicker/match-app/internal/models"
)

// Store persists messages. Conversation returns both directions between a
// and b in creation order.
type Store interface {
	Create(ctx context.Context, sender, receiver, content string) (models.Message, error)
	Conversation(ctx context.Context, a, b string) ([]models.Message, error)
}

// MemoryStore keeps messages in process for development and tests. Each
// message gets a timestamp strictly after the previous one.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string][]models.Message
	last          time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string][]models.Message)}
}

func (s *MemoryStore) Create(_ context.Context, sender, receiver, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now

	msg := models.Message{
		ID:        uuid.New().String(),
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		CreatedAt: now,
	}
	key := models.ConversationKey(sender, receiver)
	s.conversations[key] = append(s.conversations[key], msg)
	return msg, nil
}

func (s *MemoryStore) Conversation(_ context.Context, a, b string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message{}, s.conversations[models.ConversationKey(a, b)]...), nil
}
