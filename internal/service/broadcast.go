package service

// Event types pushed to peers of a game.
const (
	EventBattleResolved = "battle_resolved"
	EventBattleReplayed = "battle_replayed"
	EventTurnAction     = "turn_action"
)

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastGameEvent(gameID string, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for testing or when WS is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastGameEvent(string, string, any) {}
