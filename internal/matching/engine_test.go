package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicker/match-app/internal/apperr"
	"github.com/flicker/match-app/internal/jobs"
	"github.com/flicker/match-app/internal/models"
	"github.com/flicker/match-app/internal/notify"
	"github.com/flicker/match-app/internal/presence"
	"github.com/flicker/match-app/internal/profile"
)

type notification struct {
	target string
	event  notify.Event
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (n *recordingNotifier) Notify(_ context.Context, target string, ev notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{target, ev})
}

func (n *recordingNotifier) Calls() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.calls...)
}

func seed(t *testing.T, s profile.Store, ids ...string) {
	t.Helper()
	for i, id := range ids {
		gender := models.GenderMale
		if i%2 == 1 {
			gender = models.GenderFemale
		}
		require.NoError(t, s.Create(context.Background(), &models.User{
			ID:               id,
			Name:             "Name " + id,
			Email:            id + "@example.com",
			Age:              30,
			Gender:           gender,
			GenderPreference: models.PreferenceBoth,
			Image:            "img-" + id,
		}))
	}
}

func newRedisProfiles(t *testing.T) profile.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return profile.NewRedisStore(rdb)
}

func TestSwipeRightWithoutReciprocal(t *testing.T) {
	store := profile.NewMemoryStore()
	seed(t, store, "a", "b")
	n := &recordingNotifier{}
	e := NewEngine(store, n, zerolog.Nop())

	res, err := e.SwipeRight(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, []string{"b"}, res.User.Likes)
	assert.Empty(t, res.User.Matches)
	assert.Empty(t, n.Calls())
}

func TestSwipeRightCreatesMatchAndNotifiesBoth(t *testing.T) {
	store := profile.NewMemoryStore()
	seed(t, store, "a", "b")
	n := &recordingNotifier{}
	e := NewEngine(store, n, zerolog.Nop())
	ctx := context.Background()

	_, err := e.SwipeRight(ctx, "b", "a")
	require.NoError(t, err)

	res, err := e.SwipeRight(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.Equal(t, []string{"b"}, res.User.Matches)

	calls := n.Calls()
	require.Len(t, calls, 2)
	byTarget := map[string]notify.MatchEvent{}
	for _, c := range calls {
		byTarget[c.target] = c.event.(notify.MatchEvent)
	}
	assert.Equal(t, models.Summary{ID: "a", Name: "Name a", Image: "img-a"}, byTarget["b"].Counterpart)
	assert.Equal(t, models.Summary{ID: "b", Name: "Name b", Image: "img-b"}, byTarget["a"].Counterpart)
}

func TestSwipeRightIsIdempotent(t *testing.T) {
	store := profile.NewMemoryStore()
	seed(t, store, "a", "b")
	n := &recordingNotifier{}
	e := NewEngine(store, n, zerolog.Nop())
	ctx := context.Background()

	_, err := e.SwipeRight(ctx, "b", "a")
	require.NoError(t, err)
	first, err := e.SwipeRight(ctx, "a", "b")
	require.NoError(t, err)
	require.True(t, first.Matched)

	second, err := e.SwipeRight(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, second.Matched)
	assert.Equal(t, first.User.Likes, second.User.Likes)
	assert.Equal(t, first.User.Matches, second.User.Matches)
	assert.Len(t, n.Calls(), 2, "a repeated swipe must not notify again")

	b, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, b.Matches)
}

func TestSwipeRightErrors(t *testing.T) {
	store := profile.NewMemoryStore()
	seed(t, store, "a")
	n := &recordingNotifier{}
	e := NewEngine(store, n, zerolog.Nop())
	ctx := context.Background()

	_, err := e.SwipeRight(ctx, "a", "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.SwipeRight(ctx, "a", "a")
	assert.ErrorIs(t, err, apperr.ErrInvalidAction)

	_, err = e.SwipeRight(ctx, "ghost", "a")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	a, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, a.Likes, "failed swipes leave no trace")
	assert.Empty(t, n.Calls())
}

func TestSwipeLeft(t *testing.T) {
	store := profile.NewMemoryStore()
	seed(t, store, "a", "b")
	n := &recordingNotifier{}
	e := NewEngine(store, n, zerolog.Nop())
	ctx := context.Background()

	u, err := e.SwipeLeft(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, u.Dislikes)

	u, err = e.SwipeLeft(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, u.Dislikes)

	_, err = e.SwipeLeft(ctx, "a", "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, n.Calls())
}

func TestMatchesAndCandidates(t *testing.T) {
	store := profile.NewMemoryStore()
	seed(t, store, "a", "b", "c")
	e := NewEngine(store, &recordingNotifier{}, zerolog.Nop())
	ctx := context.Background()

	_, err := e.SwipeRight(ctx, "a", "b")
	require.NoError(t, err)
	_, err = e.SwipeRight(ctx, "b", "a")
	require.NoError(t, err)

	matches, err := e.Matches(ctx, "a")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)

	cands, err := e.Candidates(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "c", cands[0].ID)

	_, err = e.Matches(ctx, "ghost")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = e.Candidates(ctx, "ghost", 10)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

// TestConcurrentMutualSwipe runs A->B and B->A at the same time, many times,
// against both stores: exactly one match pair and one notification pair.
func TestConcurrentMutualSwipe(t *testing.T) {
	stores := map[string]func(t *testing.T) profile.Store{
		"memory": func(*testing.T) profile.Store { return profile.NewMemoryStore() },
		"redis":  newRedisProfiles,
	}
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			ctx := context.Background()

			for i := 0; i < 30; i++ {
				a, b := fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i)
				seed(t, store, a, b)
				n := &recordingNotifier{}
				e := NewEngine(store, n, zerolog.Nop())

				var wg sync.WaitGroup
				results := make([]*SwipeResult, 2)
				errs := make([]error, 2)
				start := make(chan struct{})
				wg.Add(2)
				go func() { defer wg.Done(); <-start; results[0], errs[0] = e.SwipeRight(ctx, a, b) }()
				go func() { defer wg.Done(); <-start; results[1], errs[1] = e.SwipeRight(ctx, b, a) }()
				close(start)
				wg.Wait()

				require.NoError(t, errs[0])
				require.NoError(t, errs[1])
				assert.NotEqual(t, results[0].Matched, results[1].Matched, "exactly one swipe reports the match")

				ua, err := store.Get(ctx, a)
				require.NoError(t, err)
				ub, err := store.Get(ctx, b)
				require.NoError(t, err)
				assert.Equal(t, []string{b}, ua.Matches)
				assert.Equal(t, []string{a}, ub.Matches)

				calls := n.Calls()
				require.Len(t, calls, 2)
				assert.ElementsMatch(t, []string{a, b}, []string{calls[0].target, calls[1].target})
			}
		})
	}
}

// liveConn captures frames pushed through the real gateway.
type liveConn struct {
	mu     sync.Mutex
	frames []map[string]interface{}
}

func (c *liveConn) Send(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, m)
	c.mu.Unlock()
	return nil
}

type nopQueue struct{ n int }

func (q *nopQueue) Enqueue(context.Context, jobs.Job) (string, error) {
	q.n++
	return "j", nil
}

func TestMatchDeliveredToBothLiveConnections(t *testing.T) {
	store := profile.NewMemoryStore()
	seed(t, store, "a", "b")

	registry := presence.NewRegistry()
	connA, connB := &liveConn{}, &liveConn{}
	registry.Register("a", connA)
	registry.Register("b", connB)
	gateway := presence.NewGateway(registry, zerolog.Nop())
	queue := &nopQueue{}
	dispatcher := notify.NewDispatcher(gateway, queue, zerolog.Nop())
	e := NewEngine(store, dispatcher, zerolog.Nop())
	ctx := context.Background()

	_, err := e.SwipeRight(ctx, "b", "a")
	require.NoError(t, err)
	res, err := e.SwipeRight(ctx, "a", "b")
	require.NoError(t, err)
	require.True(t, res.Matched)

	require.Len(t, connA.frames, 1)
	require.Len(t, connB.frames, 1)
	assert.Equal(t, map[string]interface{}{"type": "newMatch", "_id": "b", "name": "Name b", "image": "img-b"}, connA.frames[0])
	assert.Equal(t, map[string]interface{}{"type": "newMatch", "_id": "a", "name": "Name a", "image": "img-a"}, connB.frames[0])
	assert.Zero(t, queue.n, "matches never queue email")
}
