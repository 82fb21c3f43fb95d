package handler

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub-originated event types. Battle and turn events come from the services.
const (
	EventConnected  = "connected"
	EventPeerJoined = "peer_joined"
	EventPeerLeft   = "peer_left"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type   string `json:"type"`
	GameID string `json:"game_id"`
	Data   any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	GameID string `json:"game_id"`
}

// peerConn is one peer's WebSocket connection and its outgoing queue.
type peerConn struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
	games  map[string]bool // guarded by Hub.mu
}

func newPeerConn(conn *websocket.Conn, userID string, buf int) *peerConn {
	return &peerConn{conn: conn, userID: userID, send: make(chan []byte, buf), games: make(map[string]bool)}
}

// Hub fans game events out to the peers watching each game.
type Hub struct {
	mu    sync.RWMutex
	conns map[*peerConn]bool
	games map[string]map[*peerConn]bool
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*peerConn]bool),
		games: make(map[string]map[*peerConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *peerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = true
}

// Unregister drops a connection, leaves all of its games and closes its queue.
func (h *Hub) Unregister(c *peerConn) {
	h.mu.Lock()
	left := make([]string, 0, len(c.games))
	for gameID := range c.games {
		h.leaveLocked(c, gameID)
		left = append(left, gameID)
	}
	delete(h.conns, c)
	close(c.send)
	h.mu.Unlock()

	for _, gameID := range left {
		h.BroadcastGameEvent(gameID, EventPeerLeft, map[string]string{"user_id": c.userID})
	}
}

// Subscribe makes a connection receive a game's events and announces the
// peer to the others already watching.
func (h *Hub) Subscribe(c *peerConn, gameID string) {
	h.mu.Lock()
	if h.games[gameID] == nil {
		h.games[gameID] = make(map[*peerConn]bool)
	}
	already := c.games[gameID]
	h.games[gameID][c] = true
	c.games[gameID] = true
	h.mu.Unlock()

	if !already {
		h.BroadcastGameEvent(gameID, EventPeerJoined, map[string]string{"user_id": c.userID})
	}
}

// Unsubscribe stops a connection receiving a game's events.
func (h *Hub) Unsubscribe(c *peerConn, gameID string) {
	h.mu.Lock()
	was := c.games[gameID]
	h.leaveLocked(c, gameID)
	h.mu.Unlock()

	if was {
		h.BroadcastGameEvent(gameID, EventPeerLeft, map[string]string{"user_id": c.userID})
	}
}

func (h *Hub) leaveLocked(c *peerConn, gameID string) {
	delete(c.games, gameID)
	if conns, ok := h.games[gameID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.games, gameID)
		}
	}
}

// BroadcastGameEvent implements service.Broadcaster. Slow peers whose queue
// is full miss the event; they can catch up from the turn log.
func (h *Hub) BroadcastGameEvent(gameID string, eventType string, data any) {
	msg, err := json.Marshal(WSEvent{Type: eventType, GameID: gameID, Data: data})
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Str("type", eventType).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.games[gameID] {
		select {
		case c.send <- msg:
		default:
			log.Warn().Str("userId", c.userID).Str("gameId", gameID).Str("type", eventType).Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// Peers returns the distinct users watching a game, sorted.
func (h *Hub) Peers(gameID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for c := range h.games[gameID] {
		if !seen[c.userID] {
			seen[c.userID] = true
			out = append(out, c.userID)
		}
	}
	sort.Strings(out)
	return out
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}
