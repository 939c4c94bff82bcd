package server

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"quizrally/internal/room"
	"quizrally/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// Hard transport cap; the configured per-message limit is enforced
	// separately so oversized frames get an ERROR instead of a dropped
	// connection.
	hardReadLimit = 64 * 1024
)

func (s *Server) handleWebSocket(c *gin.Context) {
	code := c.Param("code")
	clientID := c.Param("client_id")

	role := room.RolePlayer
	if c.Query("organizer") == "true" {
		role = room.RoleOrganizer
	} else if c.Query("spectator") == "true" {
		role = room.RoleSpectator
	}
	token := c.Query("token")

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for room %s: %v", code, err)
		return
	}

	r, client, err := s.manager.Connect(code, clientID, role, token)
	if err != nil {
		reason := "room not found"
		switch err {
		case session.ErrInvalidToken:
			reason = "invalid organizer token"
		case session.ErrRoomNotFound:
			reason = "room not found"
		}
		msg, _ := json.Marshal(map[string]any{"type": session.MsgError, "message": reason})
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, msg)
		_ = conn.Close()
		return
	}

	go s.writePump(conn, client)
	s.readPump(conn, r, client, role)
}

func (s *Server) writePump(conn *websocket.Conn, client *room.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(conn *websocket.Conn, r *room.Room, client *room.Client, role room.Role) {
	defer func() {
		s.manager.Disconnect(r, client.ID, role)
		_ = conn.Close()
	}()

	conn.SetReadLimit(hardReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := newMessageLimiter(s.config.WSRateLimitPerSec)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error in room %s: %v", r.Code, err)
			}
			return
		}

		if int64(len(data)) > s.config.MaxWSMessageSize {
			client.PushJSON(map[string]any{"type": session.MsgError, "message": "message too large"})
			continue
		}
		if !limiter.allow() {
			client.PushJSON(map[string]any{"type": session.MsgError, "message": "too many messages, slow down"})
			continue
		}

		s.manager.HandleMessage(r, client.ID, role, data)
	}
}

// messageLimiter is a fixed-window counter: at most n messages per second
// on a single connection.
type messageLimiter struct {
	max    int
	count  int
	window time.Time
}

func newMessageLimiter(max int) *messageLimiter {
	return &messageLimiter{max: max, window: time.Now()}
}

func (l *messageLimiter) allow() bool {
	now := time.Now()
	if now.Sub(l.window) >= time.Second {
		l.window = now
		l.count = 0
	}
	l.count++
	return l.count <= l.max
}
