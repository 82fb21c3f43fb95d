package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/freeeve/warband/internal/model"
)

type mockBattleRepo struct {
	mu      sync.Mutex
	battles map[string]*model.Battle
	order   []string
	failOn  error
}

func newMockBattleRepo() *mockBattleRepo {
	return &mockBattleRepo{battles: make(map[string]*model.Battle)}
}

func (m *mockBattleRepo) Create(_ context.Context, b *model.Battle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return m.failOn
	}
	b.CreatedAt = time.Now()
	cp := *b
	m.battles[b.ID] = &cp
	m.order = append(m.order, b.ID)
	return nil
}

func (m *mockBattleRepo) FindByID(_ context.Context, id string) (*model.Battle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.battles[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *mockBattleRepo) ListByGame(_ context.Context, gameID string) ([]model.Battle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Battle
	for _, id := range m.order {
		if b := m.battles[id]; b.GameID == gameID {
			out = append(out, *b)
		}
	}
	return out, nil
}

type mockTurnLog struct {
	mu      sync.Mutex
	seqs    map[string]int
	actions map[string][]json.RawMessage
	acks    map[string]map[string]bool
	failOn  error
}

func newMockTurnLog() *mockTurnLog {
	return &mockTurnLog{
		seqs:    make(map[string]int),
		actions: make(map[string][]json.RawMessage),
		acks:    make(map[string]map[string]bool),
	}
}

func turnLogKey(gameID string, turn int) string { return gameID + ":" + strconv.Itoa(turn) }

func (m *mockTurnLog) NextSeq(_ context.Context, gameID string, turn int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return 0, m.failOn
	}
	k := turnLogKey(gameID, turn)
	n := m.seqs[k]
	m.seqs[k] = n + 1
	return n, nil
}

func (m *mockTurnLog) AppendAction(_ context.Context, gameID string, turn int, record json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := turnLogKey(gameID, turn)
	m.actions[k] = append(m.actions[k], append(json.RawMessage(nil), record...))
	return nil
}

func (m *mockTurnLog) Actions(_ context.Context, gameID string, turn int) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]json.RawMessage(nil), m.actions[turnLogKey(gameID, turn)]...), nil
}

func (m *mockTurnLog) AckReplay(_ context.Context, gameID, battleID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := gameID + ":" + battleID
	if m.acks[k] == nil {
		m.acks[k] = make(map[string]bool)
	}
	m.acks[k][userID] = true
	return nil
}

func (m *mockTurnLog) ReplayAcks(_ context.Context, gameID, battleID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for u := range m.acks[gameID+":"+battleID] {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

type broadcastEvent struct {
	gameID    string
	eventType string
	data      any
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []broadcastEvent
}

func (m *mockBroadcaster) BroadcastGameEvent(gameID, eventType string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, broadcastEvent{gameID, eventType, data})
}

func (m *mockBroadcaster) ofType(eventType string) []broadcastEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []broadcastEvent
	for _, e := range m.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

var errStore = errors.New("store unavailable")

func intPtr(n int) *int { return &n }

