package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/warband/internal/auth"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is handled by middleware
	},
}

// WSHandler upgrades peers to WebSocket connections on the hub.
type WSHandler struct {
	hub    *Hub
	jwtMgr *auth.JWTManager
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager) *WSHandler {
	return &WSHandler{hub: hub, jwtMgr: jwtMgr}
}

// ServeWS handles GET /api/v1/ws. Browsers cannot set headers on a
// WebSocket handshake, so the access token comes in ?token=.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		writeError(w, http.StatusUnauthorized, "missing token parameter")
		return
	}

	claims, err := h.jwtMgr.ValidateFor(tokenStr, auth.UseAccess)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := newPeerConn(conn, claims.UserID, sendBufSize)
	h.hub.Register(c)

	welcome, _ := json.Marshal(WSEvent{
		Type: EventConnected,
		Data: map[string]string{"user_id": claims.UserID},
	})
	c.send <- welcome

	go h.writePump(c)
	go h.readPump(c)

	log.Info().Str("userId", claims.UserID).Int("total", h.hub.ConnectionCount()).Msg("Peer connected")
}

// handleClientMessage applies one subscribe or unsubscribe request.
func (h *WSHandler) handleClientMessage(c *peerConn, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.GameID == "" {
		log.Debug().Str("userId", c.userID).Msg("Ignoring malformed client message")
		return
	}
	switch msg.Action {
	case "subscribe":
		h.hub.Subscribe(c, msg.GameID)
	case "unsubscribe":
		h.hub.Unsubscribe(c, msg.GameID)
	default:
		log.Debug().Str("userId", c.userID).Str("action", msg.Action).Msg("Unknown client action")
	}
}

func (h *WSHandler) readPump(c *peerConn) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("userId", c.userID).Msg("Peer disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("userId", c.userID).Msg("WebSocket unexpected close")
			}
			return
		}
		h.handleClientMessage(c, message)
	}
}

// writePump drains the peer's queue, batching queued events into one frame
// separated by newlines.
func (h *WSHandler) writePump(c *peerConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			for n := len(c.send); n > 0; n-- {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Peers handles GET /api/v1/games/{id}/peers: the users currently watching
// the game.
func (h *WSHandler) Peers(w http.ResponseWriter, r *http.Request) {
	peers := h.hub.Peers(r.PathValue("id"))
	if peers == nil {
		peers = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"peers": peers})
}
