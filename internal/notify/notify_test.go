package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicker/match-app/internal/jobs"
	"github.com/flicker/match-app/internal/models"
	"github.com/flicker/match-app/internal/protocol"
)

type published struct {
	uid, event string
	payload    interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	online map[string]bool
	calls  []published
	panics bool
}

func (p *fakePublisher) Publish(uid, event string, payload interface{}) bool {
	if p.panics {
		panic("socket exploded")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, published{uid, event, payload})
	return p.online[uid]
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job jobs.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, job)
	return "job-1", nil
}

func TestNotifyMatchIsLiveOnly(t *testing.T) {
	pub := &fakePublisher{online: map[string]bool{"a": true}}
	q := &fakeQueue{}
	d := NewDispatcher(pub, q, zerolog.Nop())

	counterpart := models.Summary{ID: "b", Name: "Bo", Image: "img"}
	d.Notify(context.Background(), "a", MatchEvent{Counterpart: counterpart})
	d.Notify(context.Background(), "offline", MatchEvent{Counterpart: counterpart})

	require.Len(t, pub.calls, 2)
	assert.Equal(t, "a", pub.calls[0].uid)
	assert.Equal(t, protocol.TypeNewMatch, pub.calls[0].event)
	assert.Equal(t, counterpart, pub.calls[0].payload)
	assert.Empty(t, q.jobs, "matches never queue email")
}

func TestNotifyMessageAlwaysEnqueues(t *testing.T) {
	for name, online := range map[string]bool{"online": true, "offline": false} {
		t.Run(name, func(t *testing.T) {
			pub := &fakePublisher{online: map[string]bool{"b": online}}
			q := &fakeQueue{}
			d := NewDispatcher(pub, q, zerolog.Nop())

			msg := models.Message{ID: "m1", Sender: "a", Receiver: "b", Content: "hola", CreatedAt: time.Now()}
			email := jobs.MessageEmail{To: "b@example.com", SenderName: "Ana", Content: "hola"}
			d.Notify(context.Background(), "b", MessageEvent{Message: msg, Email: email})

			require.Len(t, pub.calls, 1)
			assert.Equal(t, protocol.TypeNewMessage, pub.calls[0].event)
			assert.Equal(t, protocol.NewMessageMsg{Message: msg}, pub.calls[0].payload)
			require.Len(t, q.jobs, 1)
			assert.Equal(t, email, q.jobs[0])
		})
	}
}

func TestNotifySwallowsFailures(t *testing.T) {
	d := NewDispatcher(&fakePublisher{}, &fakeQueue{err: errors.New("redis down")}, zerolog.Nop())
	assert.NotPanics(t, func() {
		d.Notify(context.Background(), "b", MessageEvent{Email: jobs.MessageEmail{To: "b@example.com"}})
	})

	q := &fakeQueue{}
	d = NewDispatcher(&fakePublisher{panics: true}, q, zerolog.Nop())
	assert.NotPanics(t, func() {
		d.Notify(context.Background(), "b", MessageEvent{Email: jobs.MessageEmail{To: "b@example.com"}})
	})
	assert.Len(t, q.jobs, 1, "email is queued even when live delivery blows up")
}

func TestNotifyMessageEnqueuesAfterCallerCancels(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	q := jobs.NewQueue(rdb, jobs.QueueName)

	d := NewDispatcher(&fakePublisher{}, q, zerolog.Nop())

	// The request that persisted the message is already gone.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.Notify(ctx, "bob", MessageEvent{
		Message: models.Message{ID: "m1", Sender: "ana", Receiver: "bob", Content: "hi"},
		Email:   jobs.MessageEmail{To: "bob@example.com", SenderName: "Ana", Content: "hi"},
	})

	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, job, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", job.(jobs.MessageEmail).To)
}
