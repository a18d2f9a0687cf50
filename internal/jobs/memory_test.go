package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, MessageEmail{To: "a@example.com", SenderName: "Ana", Content: "one"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, MessageEmail{To: "a@example.com", SenderName: "Ana", Content: "two"})
	require.NoError(t, err)

	n, _ := q.Len(ctx)
	assert.EqualValues(t, 2, n)

	env, job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first, env.ID)
	assert.Equal(t, "one", job.(MessageEmail).Content)
}

func TestMemoryQueueEmptyAndFull(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	_, _, err := q.Dequeue(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = q.Enqueue(ctx, MessageEmail{To: "a@example.com"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, MessageEmail{To: "b@example.com"})
	assert.Error(t, err)
}
