// Package wsclient is a small real-time client used by the end-to-end
// runner. It connects with gobwas/ws, the same library the server uses, and
// lets callers wait for frames by type.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Frame is one server frame: its type and the full raw JSON.
type Frame struct {
	Type string
	Raw  json.RawMessage
}

// Decode unmarshals the frame into v.
func (f Frame) Decode(v interface{}) error {
	return json.Unmarshal(f.Raw, v)
}

// Client is one simulated user connection.
type Client struct {
	userID string
	conn   net.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	pending []Frame
	notify  chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	readErr   error
}

// Dial connects to the real-time endpoint at rawURL as userID.
func Dial(ctx context.Context, rawURL, userID string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("wsclient: parse url: %w", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	conn, br, _, err := ws.Dial(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("wsclient: dial: %w", err)
	}

	c := &Client{
		userID: userID,
		conn:   conn,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	if br != nil {
		// Frames already buffered by the handshake are read through br.
		c.conn = &bufferedConn{Conn: conn, r: br}
	}
	go c.readLoop()
	return c, nil
}

// UserID returns the UID the client connected as.
func (c *Client) UserID() string {
	return c.userID
}

// Send marshals msg and writes it as a text frame.
func (c *Client) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("wsclient: marshal: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// Expect waits for the first frame of msgType, consuming it and leaving
// other frames queued.
func (c *Client) Expect(ctx context.Context, msgType string) (Frame, error) {
	for {
		if f, ok := c.take(msgType); ok {
			return f, nil
		}
		select {
		case <-c.notify:
		case <-c.done:
			if f, ok := c.take(msgType); ok {
				return f, nil
			}
			return Frame{}, fmt.Errorf("wsclient: connection closed waiting for %q: %v", msgType, c.readErr)
		case <-ctx.Done():
			return Frame{}, fmt.Errorf("wsclient: waiting for %q: %w", msgType, ctx.Err())
		}
	}
}

// ExpectNone reports an error if a frame of msgType arrives within wait.
func (c *Client) ExpectNone(msgType string, wait time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	if f, err := c.Expect(ctx, msgType); err == nil {
		return fmt.Errorf("wsclient: unexpected %q frame: %s", msgType, f.Raw)
	}
	return nil
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

func (c *Client) take(msgType string) (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, f := range c.pending {
		if f.Type == msgType {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return f, true
		}
	}
	return Frame{}, false
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			c.readErr = err
			return
		}

		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		c.mu.Lock()
		c.pending = append(c.pending, Frame{Type: env.Type, Raw: json.RawMessage(data)})
		c.mu.Unlock()

		select {
		case c.notify <- struct{}{}:
		default:
		}
	}
}

type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	return b.r.Read(p)
}
