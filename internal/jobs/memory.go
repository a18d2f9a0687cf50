package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/flicker/match-app/internal/metrics"
)

// MemoryQueue is an in-process FIFO for single-binary development runs.
// Jobs are lost on restart. Enqueue fails when the buffer is full rather
// than blocking the caller.
type MemoryQueue struct {
	ch chan []byte
}

// NewMemoryQueue creates a queue holding up to size jobs.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{ch: make(chan []byte, size)}
}

// Enqueue stores job and returns its ID.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job) (string, error) {
	env, data, err := Encode(job)
	if err != nil {
		return "", err
	}
	select {
	case q.ch <- data:
	default:
		return "", fmt.Errorf("jobs: enqueue %s: memory queue full", job.Kind())
	}
	metrics.JobsTotal.WithLabelValues(string(job.Kind()), metrics.JobEnqueued).Inc()
	return env.ID, nil
}

// Dequeue waits up to timeout for the oldest job.
func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (Envelope, Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-q.ch:
		return Decode(data)
	case <-timer.C:
		return Envelope{}, nil, ErrEmpty
	case <-ctx.Done():
		return Envelope{}, nil, ctx.Err()
	}
}

// Len returns the number of waiting jobs.
func (q *MemoryQueue) Len(context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}
