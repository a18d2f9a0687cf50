package profile

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flicker/match-app/internal/apperr"
	"github.com/flicker/match-app/internal/models"
)

type memoryUser struct {
	user     models.User
	likes    map[string]struct{}
	dislikes map[string]struct{}
	matches  []string
}

// MemoryStore is an in-process Store for development and tests. One mutex
// guards every profile, which makes Like atomic.
type MemoryStore struct {
	mu     sync.Mutex
	users  map[string]*memoryUser
	emails map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]*memoryUser),
		emails: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, u *models.User) error {
	if err := Validate(u); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if _, ok := s.users[u.ID]; ok {
		return apperr.InvalidAction("user already exists")
	}
	email := strings.ToLower(u.Email)
	if _, ok := s.emails[email]; ok {
		return apperr.InvalidAction("email already registered")
	}

	stored := *u
	stored.Likes, stored.Dislikes, stored.Matches = nil, nil, nil
	s.users[u.ID] = &memoryUser{
		user:     stored,
		likes:    make(map[string]struct{}),
		dislikes: make(map[string]struct{}),
	}
	s.emails[email] = u.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	u := m.user
	u.Likes = sorted(keys(m.likes))
	u.Dislikes = sorted(keys(m.dislikes))
	u.Matches = append([]string{}, m.matches...)
	return &u, nil
}

func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	return ok, nil
}

func (s *MemoryStore) Like(_ context.Context, from, to string) (LikeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, okA := s.users[from]
	b, okB := s.users[to]
	if !okA || !okB {
		return LikeResult{}, apperr.NotFound("user not found")
	}
	if _, dup := a.likes[to]; dup {
		return LikeResult{}, nil
	}
	a.likes[to] = struct{}{}

	if _, reciprocal := b.likes[from]; !reciprocal {
		return LikeResult{Added: true}, nil
	}
	a.matches = appendUnique(a.matches, to)
	b.matches = appendUnique(b.matches, from)
	return LikeResult{Added: true, Matched: true}, nil
}

func (s *MemoryStore) Dislike(_ context.Context, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.users[from]
	if !ok {
		return false, apperr.NotFound("user not found")
	}
	if _, dup := m.dislikes[to]; dup {
		return false, nil
	}
	m.dislikes[to] = struct{}{}
	return true, nil
}

func (s *MemoryStore) Matches(_ context.Context, id string) ([]models.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.users[id]
	if !ok {
		return []models.Summary{}, nil
	}
	out := make([]models.Summary, 0, len(m.matches))
	for _, mid := range m.matches {
		if other, ok := s.users[mid]; ok {
			out = append(out, other.user.Summary())
		}
	}
	return out, nil
}

func (s *MemoryStore) Candidates(_ context.Context, id string, limit int) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	self, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}

	out := []models.User{}
	for cid, c := range s.users {
		if cid == id {
			continue
		}
		if _, seen := self.likes[cid]; seen {
			continue
		}
		if _, seen := self.dislikes[cid]; seen {
			continue
		}
		if !self.user.Accepts(c.user.Gender) || !c.user.Accepts(self.user.Gender) {
			continue
		}
		out = append(out, c.user.Public())
	}

	sortCandidates(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func appendUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}
