// Package ws handles WebSocket connection management for the gateway:
// upgrading HTTP connections, maintaining the live connection registry, and
// feeding incoming frames to the application handler.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8080"
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // idle timeout for client reads
	WriteTimeout   time.Duration // timeout for WebSocket write operations
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		MaxConnections: 10000,
		ReadTimeout:    5 * time.Minute,
		WriteTimeout:   10 * time.Second,
	}
}

// Server is the gateway WebSocket server built on gobwas/ws. Each accepted
// connection gets its own read goroutine; frames are handed to the
// onMessage callback.
type Server struct {
	config       ServerConfig
	conns        *ConnectionManager
	onMessage    func(conn *Connection, data []byte)
	onDisconnect func(conn *Connection)
	httpServer   *http.Server
	startedAt    time.Time
}

// NewServer creates a Server with the given configuration and message
// callback. The onMessage function is called from the connection's read
// goroutine whenever a complete text frame arrives.
func NewServer(config ServerConfig, onMessage func(conn *Connection, data []byte)) *Server {
	return &Server{
		config:    config,
		conns:     NewConnectionManager(),
		onMessage: onMessage,
	}
}

// SetOnDisconnect registers a callback invoked when a connection is removed
// (read error or graceful close), before it is dropped from the registry.
func (s *Server) SetOnDisconnect(fn func(conn *Connection)) {
	s.onDisconnect = fn
}

// Start configures the HTTP server and begins accepting WebSocket
// connections. It blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	log.Printf("ws: server listening on %s (max_conns=%d)", s.config.ListenAddr, s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// handleUpgrade upgrades an HTTP request to a WebSocket connection and
// starts the per-connection read loop.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	c := &Connection{
		ID:        uuid.New().String(),
		Conn:      conn,
		CreatedAt: time.Now(),
	}
	s.conns.Add(c)
	log.Printf("ws: new connection conn=%s (total=%d)", c.ID, s.conns.Count())

	go s.readLoop(c)
}

// readLoop reads frames until the connection dies. Control frames are
// handled by wsutil; close and read errors remove the connection.
func (s *Server) readLoop(c *Connection) {
	defer s.RemoveConnection(c)

	for {
		if s.config.ReadTimeout > 0 {
			_ = c.Conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		data, err := wsutil.ReadClientText(c.Conn)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				log.Printf("ws: idle timeout conn=%s", c.ID)
			}
			return
		}

		if len(data) == 0 {
			continue
		}
		if s.onMessage != nil {
			s.onMessage(c, data)
		}
	}
}

// handleHealth responds with the server's health status as JSON, including
// the current connection count and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

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
}

// RemoveConnection drops a connection from the registry and closes it, then
// runs the disconnect callback so the application can clean up per-user
// state. Removal is idempotent: the eviction path and the evicted
// connection's own read-loop teardown both call this, and the callback must
// fire exactly once or the second run tears down state the user's
// replacement connection just created.
func (s *Server) RemoveConnection(c *Connection) {
	if !s.conns.Remove(c.ID) {
		return
	}
	log.Printf("ws: connection closed conn=%s user=%s (total=%d)", c.ID, c.UserID(), s.conns.Count())
	if s.onDisconnect != nil {
		s.onDisconnect(c)
	}
}

// SendToUser writes a text frame to the logged-in user's connection.
func (s *Server) SendToUser(userID string, data []byte) error {
	c := s.conns.GetByUser(userID)
	if c == nil {
		return fmt.Errorf("ws: no connection for user %s", userID)
	}
	return s.send(c, data)
}

// Send writes a text frame to a specific connection.
func (s *Server) Send(c *Connection, data []byte) error {
	return s.send(c, data)
}

func (s *Server) send(c *Connection, data []byte) error {
	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	err := c.WriteMessage(data)
	_ = c.Conn.SetWriteDeadline(time.Time{})
	return err
}

// Connections returns the ConnectionManager for external access to
// connection state.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown stops the HTTP listener and closes all active connections.
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("ws: http shutdown error: %v", err)
		}
	}

	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}

	log.Printf("ws: server stopped, all connections closed")
	return nil
}
