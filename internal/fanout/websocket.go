// -----------------------------------------------------------------------
// WebSocket Subscriber - adapts a gorilla connection to the hub
// -----------------------------------------------------------------------

package fanout

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// WSSubscriber wraps one websocket connection. Writes are serialized by
// a per-connection mutex; gorilla allows one concurrent writer only.
type WSSubscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWSSubscriber wraps an upgraded connection.
func NewWSSubscriber(conn *websocket.Conn) *WSSubscriber {
	return &WSSubscriber{conn: conn}
}

// Send writes one text message. An error marks the connection dead and
// the hub evicts it.
func (s *WSSubscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying connection.
func (s *WSSubscriber) Close() error {
	return s.conn.Close()
}
