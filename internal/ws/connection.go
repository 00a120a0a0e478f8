package ws

import (
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection represents a single WebSocket client connection with its
// associated identity and a write mutex for serializing outbound frames.
type Connection struct {
	ID        string   // connection ID (UUID)
	Conn      net.Conn // underlying TCP connection
	CreatedAt time.Time

	mu     sync.Mutex // guards userID and writes
	userID string     // logical user, set by login
}

// WriteMessage sends a WebSocket text frame to this connection. The write
// mutex ensures that concurrent goroutines do not interleave frame bytes.
func (c *Connection) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// UserID returns the logical user bound to this connection, or "" before
// login.
func (c *Connection) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Connection) setUserID(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnectionManager is a thread-safe registry mapping connection IDs and
// logged-in user IDs to their Connection objects.
type ConnectionManager struct {
	mu     sync.RWMutex
	byID   map[string]*Connection // connection_id -> Connection
	byUser map[string]*Connection // user_id -> Connection
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID:   make(map[string]*Connection),
		byUser: make(map[string]*Connection),
	}
}

// Add registers a new connection.
func (cm *ConnectionManager) Add(conn *Connection) {
	cm.mu.Lock()
	cm.byID[conn.ID] = conn
	cm.mu.Unlock()
}

// Bind associates a logged-in user with a connection. If the user already
// has another live connection, the previous one is returned so the caller
// can close it (one connection per identity).
func (cm *ConnectionManager) Bind(connID, userID string) *Connection {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.byID[connID]
	if !ok {
		return nil
	}

	prev := cm.byUser[userID]
	if prev == conn {
		return nil
	}

	// Rebinding to a different identity must drop the old index entry, or
	// relays addressed to the old user land on this socket.
	if old := conn.UserID(); old != "" && old != userID && cm.byUser[old] == conn {
		delete(cm.byUser, old)
	}

	conn.setUserID(userID)
	cm.byUser[userID] = conn
	return prev
}

// Remove removes a connection by ID, closes it, and unbinds its user.
// Returns true if the connection was found and removed.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	conn, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		if uid := conn.UserID(); uid != "" && cm.byUser[uid] == conn {
			delete(cm.byUser, uid)
		}
	}
	cm.mu.Unlock()

	if ok {
		conn.Close()
	}
	return ok
}

// Get returns the connection with the given ID, or nil.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	conn := cm.byID[id]
	cm.mu.RUnlock()
	return conn
}

// GetByUser returns the connection of the given logged-in user, or nil.
func (cm *ConnectionManager) GetByUser(userID string) *Connection {
	cm.mu.RLock()
	conn := cm.byUser[userID]
	cm.mu.RUnlock()
	return conn
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, conn := range cm.byID {
		conns = append(conns, conn)
	}
	cm.mu.RUnlock()
	return conns
}
