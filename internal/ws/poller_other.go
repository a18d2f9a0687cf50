//go:build !linux

package ws

import (
	"bufio"
	"net"
	"sync"
)

// Poller is the portable fallback for development machines: one goroutine
// per connection peeks for the next byte and reports the connection as ready,
// then waits for Resume before peeking again.
type Poller struct {
	mu      sync.Mutex
	watched map[net.Conn]*watchedConn
	ready   chan net.Conn
	done    chan struct{}
}

// watchedConn routes reads through the buffered reader the watcher peeks on,
// so no frame bytes are lost.
type watchedConn struct {
	net.Conn
	r    *bufio.Reader
	gate chan struct{}
}

func (w *watchedConn) Read(b []byte) (int, error) {
	return w.r.Read(b)
}

// NewPoller creates the fallback poller.
func NewPoller() (*Poller, error) {
	return &Poller{
		watched: make(map[net.Conn]*watchedConn),
		ready:   make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Add starts watching conn and returns the wrapper all reads must go through.
func (p *Poller) Add(conn net.Conn) (net.Conn, error) {
	w := &watchedConn{Conn: conn, r: bufio.NewReader(conn), gate: make(chan struct{}, 1)}

	p.mu.Lock()
	p.watched[w] = w
	p.mu.Unlock()

	go p.watch(w)
	return w, nil
}

func (p *Poller) watch(w *watchedConn) {
	for {
		_, err := w.r.Peek(1)
		select {
		case p.ready <- w:
		case <-p.done:
			return
		}
		if err != nil {
			return
		}
		select {
		case <-w.gate:
		case <-p.done:
			return
		}
	}
}

// Resume lets the watcher look for the next frame once the server finished
// reading the current one.
func (p *Poller) Resume(conn net.Conn) {
	p.mu.Lock()
	w, ok := p.watched[conn]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.gate <- struct{}{}:
	default:
	}
}

// Remove stops tracking conn.
func (p *Poller) Remove(conn net.Conn) error {
	p.mu.Lock()
	delete(p.watched, conn)
	p.mu.Unlock()
	return nil
}

// Wait blocks for one ready connection and drains any others already queued.
func (p *Poller) Wait() ([]net.Conn, error) {
	select {
	case first := <-p.ready:
		conns := []net.Conn{first}
		for {
			select {
			case c := <-p.ready:
				conns = append(conns, c)
			default:
				return conns, nil
			}
		}
	case <-p.done:
		return nil, net.ErrClosed
	}
}

// Close stops all watchers.
func (p *Poller) Close() error {
	close(p.done)
	p.mu.Lock()
	p.watched = nil
	p.mu.Unlock()
	return nil
}

func isInterrupted(err error) bool {
	return false
}

func socketFD(conn net.Conn) int {
	return -1
}
