package repository

import (
	"context"
	"encoding/json"

	"github.com/freeeve/warband/internal/model"
)

// BattleRepository defines battle record operations.
type BattleRepository interface {
	Create(ctx context.Context, b *model.Battle) error
	FindByID(ctx context.Context, id string) (*model.Battle, error)
	ListByGame(ctx context.Context, gameID string) ([]model.Battle, error)
}

// TurnLog defines the live per-turn action log and replay acknowledgements (Redis).
type TurnLog interface {
	NextSeq(ctx context.Context, gameID string, turn int) (int, error)
	AppendAction(ctx context.Context, gameID string, turn int, record json.RawMessage) error
	Actions(ctx context.Context, gameID string, turn int) ([]json.RawMessage, error)
	AckReplay(ctx context.Context, gameID, battleID, userID string) error
	ReplayAcks(ctx context.Context, gameID, battleID string) ([]string, error)
}
