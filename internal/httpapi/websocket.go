package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(_ *http.Request) bool { return true },
	EnableCompression: true,
}

// handleWebSocket upgrades the connection and subscribes it to branch head
// updates for the session extracted from the route.
func (s *Server) handleWebSocket(session *BranchSession) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)
		if !s.rateLimiter.allow(ip) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error("websocket upgrade failed", "error", err)
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.logger.Error("set read deadline", "error", err)
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		session.sendInitialState(conn)
		writeMu := session.registerClient(conn)

		done := make(chan struct{})
		session.clientWg.Add(2)
		go session.clientReadPump(conn, done)
		go session.clientWritePump(conn, done, writeMu)
	}
}
