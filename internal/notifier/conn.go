package notifier

import (
	"sync"

	"github.com/gorilla/websocket"
)

// SocketConn wraps a gorilla connection with a write mutex. Gorilla
// allows only one concurrent writer, and the hub may push from any
// goroutine.
type SocketConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewSocketConn(conn *websocket.Conn) *SocketConn {
	return &SocketConn{conn: conn}
}

func (c *SocketConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *SocketConn) Close() error {
	return c.conn.Close()
}
