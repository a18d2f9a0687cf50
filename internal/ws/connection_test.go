package ws

import (
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionManager(t *testing.T) {
	cm := NewConnectionManager()
	s1, c1 := net.Pipe()
	s2, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	a := NewConnection("a", "u1", s1, 0)
	b := NewConnection("b", "u1", s2, 0)
	cm.Add(a)
	cm.Add(b)

	assert.Equal(t, 2, cm.Count())
	assert.Same(t, a, cm.Get("a"))
	assert.Same(t, b, cm.GetByConn(s2))
	assert.Len(t, cm.All(), 2)

	assert.True(t, cm.Remove("a"))
	assert.False(t, cm.Remove("a"))
	assert.Nil(t, cm.GetByConn(s1))
	assert.Equal(t, 1, cm.Count())
}

func TestConnectionSend(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	c := NewConnection("c", "u1", server, time.Second)
	defer c.Close()

	done := make(chan error, 1)
	go func() { done <- c.Send([]byte(`{"type":"pong"}`)) }()

	data, err := wsutil.ReadServerText(client)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"pong"}`, string(data))
	require.NoError(t, <-done)
}

func TestConnectionSendTimesOut(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	c := NewConnection("c", "u1", server, 20*time.Millisecond)
	defer c.Close()

	// Nobody reads the client side, so the synchronous pipe blocks.
	err := c.Send([]byte(`{"type":"pong"}`))
	assert.Error(t, err)
}

func TestConnectionTouch(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	c := NewConnection("c", "u1", server, 0)
	first := c.LastActive()

	time.Sleep(2 * time.Millisecond)
	c.Touch()
	assert.True(t, c.LastActive().After(first))
}
