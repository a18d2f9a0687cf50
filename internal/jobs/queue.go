package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flicker/match-app/internal/metrics"
)

// QueueName is the notification queue shared by producers and workers.
const QueueName = "email-notifications"

// ErrEmpty is returned by Dequeue when no job arrived before the timeout.
var ErrEmpty = errors.New("jobs: queue empty")

// Queue is a FIFO list in Redis: producers LPUSH, workers BRPOP.
type Queue struct {
	rdb *redis.Client
	key string
}

// NewQueue creates the named queue.
func NewQueue(rdb *redis.Client, name string) *Queue {
	return &Queue{rdb: rdb, key: "queue:" + name}
}

// Enqueue stores job and returns its ID.
func (q *Queue) Enqueue(ctx context.Context, job Job) (string, error) {
	env, data, err := Encode(job)
	if err != nil {
		return "", err
	}
	if err := q.rdb.LPush(ctx, q.key, data).Err(); err != nil {
		return "", fmt.Errorf("jobs: enqueue %s: %w", job.Kind(), err)
	}
	metrics.JobsTotal.WithLabelValues(string(job.Kind()), metrics.JobEnqueued).Inc()
	return env.ID, nil
}

// Dequeue blocks up to timeout for the oldest job. A job that fails to
// decode has already been removed from the queue; the error wraps
// ErrMalformed.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Envelope, Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return Envelope{}, nil, ErrEmpty
	}
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("jobs: dequeue: %w", err)
	}
	// BRPOP replies with [key, value].
	return Decode([]byte(res[1]))
}

// Len returns the number of waiting jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}
