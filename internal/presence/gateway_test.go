package presence

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicker/match-app/internal/protocol"
	"github.com/flicker/match-app/internal/ws"
)

type forwarded struct {
	server, uid string
	frame       []byte
}

type fakeRelay struct {
	mu   sync.Mutex
	sent []forwarded
	err  error
}

func (f *fakeRelay) Forward(server, uid string, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, forwarded{server, uid, frame})
	return nil
}

func decodeFrame(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestPublishLocal(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	r.Register("u1", conn)
	g := NewGateway(r, zerolog.Nop())

	ok := g.Publish("u1", protocol.TypeNewMatch, map[string]string{"_id": "u2", "name": "Bo", "image": ""})
	require.True(t, ok)

	frames := conn.Frames()
	require.Len(t, frames, 1)
	m := decodeFrame(t, frames[0])
	assert.Equal(t, "newMatch", m["type"])
	assert.Equal(t, "u2", m["_id"])
	assert.Equal(t, "Bo", m["name"])
}

func TestPublishOffline(t *testing.T) {
	g := NewGateway(NewRegistry(), zerolog.Nop())
	assert.False(t, g.Publish("ghost", protocol.TypeNewMatch, map[string]string{"_id": "u2"}))
}

func TestPublishWriteFailure(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", &fakeConn{err: errBrokenPipe})
	g := NewGateway(r, zerolog.Nop())

	assert.False(t, g.Publish("u1", protocol.TypeNewMatch, map[string]string{"_id": "u2"}))
}

func TestPublishUnencodablePayload(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	r.Register("u1", conn)
	g := NewGateway(r, zerolog.Nop())

	assert.False(t, g.Publish("u1", protocol.TypeNewMatch, []int{1, 2}))
	assert.Empty(t, conn.Frames())
}

func TestPublishRelaysToOwningInstance(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	other := NewRedisDirectory(client, "node-b")
	require.NoError(t, other.Claim(ctx, "u1"))

	relay := &fakeRelay{}
	g := NewGateway(NewRegistry(), zerolog.Nop(),
		WithDirectory(NewRedisDirectory(client, "node-a")),
		WithRelay(relay))

	require.True(t, g.Publish("u1", protocol.TypeNewMatch, map[string]string{"_id": "u2"}))
	require.Len(t, relay.sent, 1)
	assert.Equal(t, "node-b", relay.sent[0].server)
	assert.Equal(t, "u1", relay.sent[0].uid)
	assert.Equal(t, "newMatch", decodeFrame(t, relay.sent[0].frame)["type"])
}

func TestPublishDoesNotRelayToSelfOrUnknown(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	self := NewRedisDirectory(client, "node-a")
	require.NoError(t, self.Claim(ctx, "stale"))

	relay := &fakeRelay{}
	g := NewGateway(NewRegistry(), zerolog.Nop(), WithDirectory(self), WithRelay(relay))

	assert.False(t, g.Publish("stale", protocol.TypeNewMatch, map[string]string{"_id": "u2"}))
	assert.False(t, g.Publish("nobody", protocol.TypeNewMatch, map[string]string{"_id": "u2"}))
	assert.Empty(t, relay.sent)
}

func TestPublishRelayFailure(t *testing.T) {
	_, client := newTestRedis(t)
	require.NoError(t, NewRedisDirectory(client, "node-b").Claim(context.Background(), "u1"))

	g := NewGateway(NewRegistry(), zerolog.Nop(),
		WithDirectory(NewRedisDirectory(client, "node-a")),
		WithRelay(&fakeRelay{err: errBrokenPipe}))

	assert.False(t, g.Publish("u1", protocol.TypeNewMatch, map[string]string{"_id": "u2"}))
}

func TestDeliver(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConn{}
	r.Register("u1", conn)
	g := NewGateway(r, zerolog.Nop())

	assert.True(t, g.Deliver("u1", []byte(`{"type":"pong"}`)))
	assert.False(t, g.Deliver("u2", []byte(`{"type":"pong"}`)))
	assert.Len(t, conn.Frames(), 1)
}

func TestConnectLifecycle(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	dir := NewRedisDirectory(client, "node-a")
	g := NewGateway(NewRegistry(), zerolog.Nop(), WithDirectory(dir))

	s1, c1 := net.Pipe()
	s2, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	first := ws.NewConnection("c1", "u1", s1, time.Second)
	second := ws.NewConnection("c2", "u1", s2, time.Second)

	g.connected(first)
	g.connected(second)
	server, ok, err := dir.Locate(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "node-a", server)

	// The replaced connection closing leaves the newer one registered.
	g.disconnected(first)
	got, ok := g.Registry().Lookup("u1")
	require.True(t, ok)
	assert.Same(t, second, got)
	_, ok, err = dir.Locate(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	g.disconnected(second)
	_, ok = g.Registry().Lookup("u1")
	assert.False(t, ok)
	_, ok, err = dir.Locate(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAttachRegistersCallbacks(t *testing.T) {
	g := NewGateway(NewRegistry(), zerolog.Nop())
	server := ws.NewServer(ws.DefaultServerConfig(), zerolog.Nop(), nil)
	d := ws.NewMessageDispatcher(zerolog.Nop())
	g.Attach(server, d)

	s, c := net.Pipe()
	defer c.Close()
	conn := ws.NewConnection("c1", "u1", s, time.Second)
	server.Connections().Add(conn)
	g.connected(conn)
	require.Equal(t, 1, g.Registry().Count())

	server.RemoveConnection(conn)
	assert.Equal(t, 0, g.Registry().Count())
}
