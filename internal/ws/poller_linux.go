//go:build linux

package ws

import (
	"net"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Poller reports sockets that are ready to read using Linux epoll, so idle
// connections cost no goroutine.
type Poller struct {
	fd     int
	mu     sync.RWMutex
	conns  map[int]net.Conn
	events []unix.EpollEvent
}

// NewPoller creates an epoll instance.
func NewPoller() (*Poller, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Poller{
		fd:     fd,
		conns:  make(map[int]net.Conn),
		events: make([]unix.EpollEvent, 128),
	}, nil
}

// Add watches conn for readability and hang-up. The returned conn is the
// one reads must use; on Linux it is conn itself.
func (p *Poller) Add(conn net.Conn) (net.Conn, error) {
	fd := socketFD(conn)
	err := unix.EpollCtl(p.fd, syscall.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLHUP,
		Fd:     int32(fd),
	})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.conns[fd] = conn
	p.mu.Unlock()
	return conn, nil
}

// Resume is a no-op for epoll, which re-arms on its own.
func (p *Poller) Resume(conn net.Conn) {}

// Remove stops watching conn.
func (p *Poller) Remove(conn net.Conn) error {
	fd := socketFD(conn)

	p.mu.Lock()
	delete(p.conns, fd)
	p.mu.Unlock()

	return unix.EpollCtl(p.fd, syscall.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks until at least one watched connection is readable. Descriptors
// removed while epoll_wait was returning are skipped.
func (p *Poller) Wait() ([]net.Conn, error) {
	n, err := unix.EpollWait(p.fd, p.events, -1)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	ready := make([]net.Conn, 0, n)
	for i := 0; i < n; i++ {
		if conn, ok := p.conns[int(p.events[i].Fd)]; ok {
			ready = append(ready, conn)
		}
	}
	p.mu.RUnlock()
	return ready, nil
}

// Close releases the epoll descriptor.
func (p *Poller) Close() error {
	p.mu.Lock()
	p.conns = nil
	p.mu.Unlock()
	return unix.Close(p.fd)
}

// isInterrupted reports EINTR, which epoll_wait returns when a signal arrives.
func isInterrupted(err error) bool {
	return err == unix.EINTR
}

// socketFD reads the descriptor through SyscallConn so it is not duplicated
// the way File() would.
func socketFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1
	}

	fd := -1
	_ = raw.Control(func(sfd uintptr) {
		fd = int(sfd)
	})
	return fd
}
