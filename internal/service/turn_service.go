package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/warband/internal/repository"
	"github.com/freeeve/warband/pkg/actionlog"
)

// TurnLogService keeps the ordered action log of each game turn.
type TurnLogService struct {
	cache       repository.TurnLog
	broadcaster Broadcaster

	// gameLocks keeps sequence numbers in append order per game.
	gameLocks sync.Map
}

// NewTurnLogService creates a TurnLogService.
func NewTurnLogService(cache repository.TurnLog, broadcaster Broadcaster) *TurnLogService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &TurnLogService{cache: cache, broadcaster: broadcaster}
}

func (s *TurnLogService) lock(gameID string) func() {
	v, _ := s.gameLocks.LoadOrStore(gameID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Append records a client action. Fights are only recorded by the battle
// service when it resolves them.
func (s *TurnLogService) Append(ctx context.Context, gameID, userID string, turn int, action actionlog.Action) (*actionlog.Record, error) {
	if action == nil {
		return nil, fmt.Errorf("%w: missing action", ErrInvalidAction)
	}
	if action.Kind() == actionlog.KindFight {
		return nil, fmt.Errorf("%w: fights are recorded when resolved", ErrInvalidAction)
	}
	if end, ok := action.(actionlog.EndTurn); ok && end.Party == "" {
		end.Party = userID
		action = end
	}
	return s.append(ctx, gameID, userID, turn, action)
}

func (s *TurnLogService) append(ctx context.Context, gameID, userID string, turn int, action actionlog.Action) (*actionlog.Record, error) {
	if turn < 0 {
		return nil, fmt.Errorf("%w: negative turn %d", ErrInvalidAction, turn)
	}
	if err := action.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	unlock := s.lock(gameID)
	defer unlock()

	seq, err := s.cache.NextSeq(ctx, gameID, turn)
	if err != nil {
		return nil, err
	}
	rec := &actionlog.Record{Turn: turn, Seq: seq, Party: userID, Action: action}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}
	if err := s.cache.AppendAction(ctx, gameID, turn, data); err != nil {
		return nil, err
	}

	log.Debug().
		Str("gameId", gameID).
		Int("turn", turn).
		Int("seq", seq).
		Str("action", actionlog.Summary(action)).
		Msg("Action recorded")

	s.broadcaster.BroadcastGameEvent(gameID, EventTurnAction, rec)
	return rec, nil
}

// Actions returns a turn's records in the order they were appended.
func (s *TurnLogService) Actions(ctx context.Context, gameID string, turn int) ([]actionlog.Record, error) {
	raw, err := s.cache.Actions(ctx, gameID, turn)
	if err != nil {
		return nil, err
	}
	records := make([]actionlog.Record, 0, len(raw))
	for i, data := range raw {
		var rec actionlog.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("decode action %d of turn %d: %w", i, turn, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *TurnLogService) ackReplay(ctx context.Context, gameID, battleID, userID string) error {
	if err := s.cache.AckReplay(ctx, gameID, battleID, userID); err != nil {
		return fmt.Errorf("ack replay: %w", err)
	}
	return nil
}

func (s *TurnLogService) replayAcks(ctx context.Context, gameID, battleID string) ([]string, error) {
	acks, err := s.cache.ReplayAcks(ctx, gameID, battleID)
	if err != nil {
		return nil, fmt.Errorf("replay acks: %w", err)
	}
	return acks, nil
}
