package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestDirectoryClaimAndLocate(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	d := NewRedisDirectory(client, "node-a")

	_, ok, err := d.Locate(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, d.Claim(ctx, "u1"))
	server, ok, err := d.Locate(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "node-a", server)
}

func TestDirectoryReleaseOnlyOwnEntry(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	a := NewRedisDirectory(client, "node-a")
	b := NewRedisDirectory(client, "node-b")

	require.NoError(t, a.Claim(ctx, "u1"))
	require.NoError(t, b.Claim(ctx, "u1"))

	// node-a's stale disconnect must not clear node-b's entry.
	require.NoError(t, a.Release(ctx, "u1"))
	server, ok, err := a.Locate(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "node-b", server)

	require.NoError(t, b.Release(ctx, "u1"))
	_, ok, err = a.Locate(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDirectoryEntryExpiresUnlessRefreshed(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	d := NewRedisDirectory(client, "node-a")

	require.NoError(t, d.Claim(ctx, "u1"))
	require.NoError(t, d.Claim(ctx, "u2"))

	mr.FastForward(DirectoryTTL - time.Minute)
	require.NoError(t, d.Refresh(ctx, "u1"))
	mr.FastForward(2 * time.Minute)

	_, ok, err := d.Locate(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok, "refreshed entry should survive")

	_, ok, err = d.Locate(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, ok, "idle entry should expire")
}
