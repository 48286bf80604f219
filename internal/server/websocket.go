package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/molotovsingh/personal-backup-tool/internal/fanout"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// HandleWebSocket upgrades the connection and attaches it to the fan-out
// hub. The read loop exists only to detect the peer closing; clients
// never send application messages.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sub := fanout.NewWSSubscriber(conn)
	s.deps.Hub.Attach(sub)
	s.logger.Info().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	go func() {
		defer func() {
			s.deps.Hub.Detach(sub)
			sub.Close()
			s.logger.Info().Str("remote", r.RemoteAddr).Msg("WebSocket client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
