// Package ws terminates WebSocket connections: it upgrades authenticated
// HTTP requests, watches sockets for readable frames with a poller, reads
// frames on a bounded worker pool and evicts dead peers with a heartbeat.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flicker/match-app/internal/metrics"
	"github.com/flicker/match-app/internal/protocol"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // timeout for reading one frame
	WriteTimeout   time.Duration // timeout for writing one frame
	MaxFrameBytes  int64         // largest accepted data frame payload
	Heartbeat      HeartbeatConfig
}

// DefaultMaxFrameBytes fits the largest chat message plus its JSON envelope.
const DefaultMaxFrameBytes = 12 << 10

// DefaultServerConfig returns a ServerConfig with production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxFrameBytes:  DefaultMaxFrameBytes,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// ErrMissingUserID is returned by HandshakeUserID when the request carries
// no UID.
var ErrMissingUserID = errors.New("ws: missing user id")

// HandshakeUserID extracts the caller-supplied UID from the upgrade request:
// the "userId" query parameter, or the X-User-ID header.
func HandshakeUserID(r *http.Request) (string, error) {
	uid := strings.TrimSpace(r.URL.Query().Get("userId"))
	if uid == "" {
		uid = strings.TrimSpace(r.Header.Get("X-User-ID"))
	}
	if uid == "" {
		return "", ErrMissingUserID
	}
	return uid, nil
}

// Server upgrades HTTP requests to WebSocket connections and dispatches
// complete text frames to onMessage.
type Server struct {
	config       ServerConfig
	log          zerolog.Logger
	poller       *Poller
	conns        *ConnectionManager
	workerPool   chan struct{}
	onMessage    func(conn *Connection, data []byte)
	onConnect    func(conn *Connection)
	onDisconnect func(conn *Connection)
	done         chan struct{}
	stopOnce     sync.Once
	startedAt    time.Time
}

// NewServer creates a Server. onMessage is called from a worker goroutine
// for every complete text frame.
func NewServer(config ServerConfig, logger zerolog.Logger, onMessage func(conn *Connection, data []byte)) *Server {
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 1
	}
	return &Server{
		config:     config,
		log:        logger,
		conns:      NewConnectionManager(),
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		onMessage:  onMessage,
		done:       make(chan struct{}),
	}
}

// SetOnConnect registers a callback run after a connection is accepted and
// before the connected frame is sent.
func (s *Server) SetOnConnect(fn func(conn *Connection)) {
	s.onConnect = fn
}

// SetOnDisconnect registers a callback run exactly once per connection when
// it is removed (read error, close frame, heartbeat timeout or shutdown).
func (s *Server) SetOnDisconnect(fn func(conn *Connection)) {
	s.onDisconnect = fn
}

// Start creates the poller and launches the read loop and heartbeat in the
// background. The HTTP listener is owned by the caller, which mounts Handler.
func (s *Server) Start() error {
	poller, err := NewPoller()
	if err != nil {
		return fmt.Errorf("ws: failed to create poller: %w", err)
	}
	s.poller = poller
	s.startedAt = time.Now()

	go s.eventLoop()
	StartHeartbeat(s, s.config.Heartbeat)

	s.log.Info().
		Int("workers", s.config.WorkerPoolSize).
		Int("max_conns", s.config.MaxConnections).
		Msg("websocket server started")
	return nil
}

// Handler returns the upgrade handler for the real-time endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleUpgrade)
}

// HealthHandler reports connection count and uptime as JSON.
func (s *Server) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		resp := struct {
			Status      string `json:"status"`
			Connections int    `json:"connections"`
			Uptime      string `json:"uptime"`
		}{
			Status:      "ok",
			Connections: s.conns.Count(),
			Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// handleUpgrade rejects requests without a UID before upgrading, then
// registers the connection with the manager and the poller.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	userID, err := HandshakeUserID(r)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusUnauthorized)
		return
	}
	if s.poller == nil {
		http.Error(w, "server not started", http.StatusServiceUnavailable)
		return
	}
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	raw, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("upgrade failed")
		return
	}

	watched, err := s.poller.Add(raw)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("poller add failed")
		raw.Close()
		return
	}

	c := NewConnection(uuid.New().String(), userID, watched, s.config.WriteTimeout)
	s.conns.Add(c)
	metrics.ConnectionsActive.Inc()

	if s.onConnect != nil {
		s.onConnect(c)
	}

	frame, err := protocol.NewServerMessage(protocol.TypeConnected, protocol.ConnectedMsg{
		UserID:       userID,
		ConnectionID: c.ID,
	})
	if err == nil {
		err = c.Send(frame)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("conn_id", c.ID).Msg("failed to send connected frame")
	}

	s.log.Info().
		Str("conn_id", c.ID).
		Str("user_id", userID).
		Int("fd", c.Fd).
		Int("total", s.conns.Count()).
		Msg("connection opened")
}

// eventLoop hands each readable connection to a worker, bounded by the pool.
func (s *Server) eventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		ready, err := s.poller.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if isInterrupted(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error().Err(err).Msg("poller wait failed")
			continue
		}

		for _, conn := range ready {
			conn := conn
			s.workerPool <- struct{}{}
			go func() {
				defer func() { <-s.workerPool }()
				defer s.poller.Resume(conn)
				s.handleConn(conn)
			}()
		}
	}
}

// handleConn reads one frame. Control frames are answered without touching
// the application; read errors and close frames remove the connection.
func (s *Server) handleConn(netConn net.Conn) {
	c := s.conns.GetByConn(netConn)
	if c == nil {
		return
	}

	// Level-triggered epoll can report the same socket twice.
	if !c.processing.CompareAndSwap(false, true) {
		return
	}
	defer c.processing.Store(false)

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(netConn, ws.StateServerSide)
	if err != nil {
		// A timeout means a stale readiness report; the heartbeat handles
		// truly dead peers.
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}
	_ = netConn.SetReadDeadline(time.Time{})
	c.Touch()

	if header.OpCode.IsControl() {
		s.handleControl(c, header, reader)
		return
	}

	// Messages arrive as single frames; the payload length comes from the
	// peer and is checked before anything is allocated.
	if !header.Fin || header.OpCode == ws.OpContinuation {
		s.reject(c, ws.StatusUnsupportedData, "fragmented messages are not supported")
		return
	}
	if header.Length > s.maxFrameBytes() {
		s.log.Warn().
			Str("conn_id", c.ID).
			Str("user_id", c.UserID).
			Int64("length", header.Length).
			Msg("frame too large")
		s.reject(c, ws.StatusMessageTooBig, "message too big")
		return
	}

	data := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			s.RemoveConnection(c)
			return
		}
	}
	if len(data) == 0 {
		return
	}

	if s.onMessage != nil {
		s.onMessage(c, data)
	}
}

// handleControl consumes a control frame's payload so the stream stays
// aligned, answers pings and removes the connection on close.
func (s *Server) handleControl(c *Connection, header ws.Header, reader io.Reader) {
	if !header.Fin || header.Length > ws.MaxControlFramePayloadSize {
		s.reject(c, ws.StatusProtocolError, "invalid control frame")
		return
	}

	payload := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, payload); err != nil {
			s.RemoveConnection(c)
			return
		}
	}

	switch header.OpCode {
	case ws.OpPing:
		if err := c.writeControl(ws.NewPongFrame(payload)); err != nil {
			s.RemoveConnection(c)
		}
	case ws.OpClose:
		s.RemoveConnection(c)
	}
}

// reject sends a close frame with code and drops the connection.
func (s *Server) reject(c *Connection, code ws.StatusCode, reason string) {
	_ = c.SendClose(code, reason)
	s.RemoveConnection(c)
}

func (s *Server) maxFrameBytes() int64 {
	if s.config.MaxFrameBytes > 0 {
		return s.config.MaxFrameBytes
	}
	return DefaultMaxFrameBytes
}

// RemoveConnection unregisters and closes c. Concurrent callers race on the
// manager; only the winner runs the disconnect callback.
func (s *Server) RemoveConnection(c *Connection) {
	if s.poller != nil {
		_ = s.poller.Remove(c.Conn)
	}
	if !s.conns.Remove(c.ID) {
		return
	}
	metrics.ConnectionsActive.Dec()

	if s.onDisconnect != nil {
		s.onDisconnect(c)
	}

	s.log.Info().
		Str("conn_id", c.ID).
		Str("user_id", c.UserID).
		Int("total", s.conns.Count()).
		Msg("connection closed")
}

// Connections exposes the connection manager to the heartbeat.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown stops the loops and closes every connection, running the
// disconnect callback for each.
func (s *Server) Shutdown() error {
	s.stopOnce.Do(func() {
		close(s.done)
	})

	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}

	if s.poller != nil {
		_ = s.poller.Close()
	}
	s.log.Info().Msg("websocket server stopped")
	return nil
}
