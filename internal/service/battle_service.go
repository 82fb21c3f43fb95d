package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/warband/internal/model"
	"github.com/freeeve/warband/internal/repository"
	"github.com/freeeve/warband/internal/ruleset"
	"github.com/freeeve/warband/pkg/actionlog"
	"github.com/freeeve/warband/pkg/combat"
)

// BattleRequest asks the server to resolve a fight as the authoritative peer.
type BattleRequest struct {
	Turn int `json:"turn"`
	BattleSetup
	// Evaluation runs a what-if fight: hit points are restored and nothing is stored.
	Evaluation bool `json:"evaluation,omitempty"`
	Intense    bool `json:"intense,omitempty"`
}

// Validate checks the turn and the setup.
func (r BattleRequest) Validate(catalog *ruleset.Catalog) error {
	if r.Turn < 0 {
		return fmt.Errorf("%w: negative turn %d", ErrInvalidBattle, r.Turn)
	}
	return r.BattleSetup.Validate(catalog)
}

// BattleResult is the outcome of a resolved fight.
type BattleResult struct {
	Battle  *model.Battle  `json:"battle,omitempty"`
	Kind    string         `json:"kind"`
	Outcome string         `json:"outcome"`
	Rounds  int            `json:"rounds"`
	Events  []combat.Event `json:"events"`
	Deaths  []combat.Death `json:"deaths"`
	Units   []UnitState    `json:"units"`
}

// ReplayRequest carries a peer's own copy of the starting groups. An empty
// setup replays against the setup stored with the battle.
type ReplayRequest struct {
	BattleSetup
}

// ReplayResult is the state a peer reaches by replaying a battle.
type ReplayResult struct {
	BattleID string         `json:"battle_id"`
	Outcome  string         `json:"outcome"`
	Rounds   int            `json:"rounds"`
	Deaths   []combat.Death `json:"deaths"`
	Units    []UnitState    `json:"units"`
	Acks     []string       `json:"acks"`
}

// BattleOptions configures how the service draws randomness.
type BattleOptions struct {
	Intense bool
	Seed    int64
}

// BattleService resolves fights, stores their event logs and verifies replays.
type BattleService struct {
	battles     repository.BattleRepository
	turns       *TurnLogService
	catalog     *ruleset.Catalog
	broadcaster Broadcaster
	opts        BattleOptions

	// Each fight gets its own source derived from the seed.
	seq atomic.Int64

	// gameLocks serializes fights for keeps within one game.
	gameLocks sync.Map
}

// NewBattleService creates a BattleService.
func NewBattleService(
	battles repository.BattleRepository,
	turns *TurnLogService,
	catalog *ruleset.Catalog,
	broadcaster Broadcaster,
	opts BattleOptions,
) *BattleService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &BattleService{
		battles:     battles,
		turns:       turns,
		catalog:     catalog,
		broadcaster: broadcaster,
		opts:        opts,
	}
}

// Catalog returns the unit catalog battles are built from.
func (s *BattleService) Catalog() *ruleset.Catalog {
	return s.catalog
}

func (s *BattleService) lock(gameID string) func() {
	v, _ := s.gameLocks.LoadOrStore(gameID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *BattleService) source() combat.Source {
	return rand.New(rand.NewSource(s.opts.Seed + s.seq.Add(1)))
}

// Resolve runs a live fight. For-keeps fights are stored, appended to the
// turn log and announced to the game's peers; evaluation fights only return
// their result.
func (s *BattleService) Resolve(ctx context.Context, gameID, userID string, req BattleRequest) (*BattleResult, error) {
	if err := req.Validate(s.catalog); err != nil {
		return nil, err
	}

	opts := combat.Options{Kind: combat.ForKeeps, Intense: s.opts.Intense || req.Intense}
	if req.Evaluation {
		opts.Kind = combat.ForEvaluation
	} else {
		unlock := s.lock(gameID)
		defer unlock()
	}
	built := req.build(s.catalog)
	res := combat.NewEncounter(built.attackers, built.defenders, built.board, opts).Resolve(s.source())

	out := &BattleResult{
		Kind:    opts.Kind.String(),
		Outcome: res.Outcome.String(),
		Rounds:  res.Rounds,
		Events:  res.Events,
		Deaths:  res.Deaths,
		Units:   built.states(),
	}
	if req.Evaluation {
		return out, nil
	}

	setup, err := json.Marshal(req.BattleSetup)
	if err != nil {
		return nil, fmt.Errorf("encode setup: %w", err)
	}
	deaths, err := json.Marshal(res.Deaths)
	if err != nil {
		return nil, fmt.Errorf("encode deaths: %w", err)
	}

	b := &model.Battle{
		ID:         uuid.NewString(),
		GameID:     gameID,
		Turn:       req.Turn,
		ResolverID: userID,
		Intense:    opts.Intense,
		Outcome:    out.Outcome,
		Rounds:     res.Rounds,
		Events:     combat.FormatEvents(res.Events),
		Deaths:     deaths,
		Setup:      setup,
	}
	if err := s.battles.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("save battle: %w", err)
	}
	out.Battle = b

	fight := actionlog.Fight{
		BattleID:  b.ID,
		Attackers: groupIDs(req.Attackers),
		Defenders: groupIDs(req.Defenders),
		Pos:       req.Defenders[0].Pos,
		Outcome:   res.Outcome,
		Events:    res.Events,
	}
	if _, err := s.turns.append(ctx, gameID, userID, req.Turn, fight); err != nil {
		// The battle is stored; peers can still fetch it by id.
		log.Error().Err(err).Str("gameId", gameID).Str("battleId", b.ID).Msg("Failed to append fight to turn log")
	}

	log.Info().
		Str("gameId", gameID).
		Str("battleId", b.ID).
		Str("outcome", b.Outcome).
		Int("rounds", b.Rounds).
		Int("deaths", len(res.Deaths)).
		Msg("Battle resolved")

	s.broadcaster.BroadcastGameEvent(gameID, EventBattleResolved, b)
	return out, nil
}

// Replay applies a stored battle's event log to the caller's starting groups
// and checks that it reaches the recorded outcome. A disagreement means the
// peers' states have diverged and is reported as ErrLogMismatch.
func (s *BattleService) Replay(ctx context.Context, battleID, userID string, req ReplayRequest) (*ReplayResult, error) {
	b, err := s.battles.FindByID(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBattleNotFound
	}

	setup := req.BattleSetup
	if len(setup.Attackers) == 0 && len(setup.Defenders) == 0 {
		if err := json.Unmarshal(b.Setup, &setup); err != nil {
			return nil, fmt.Errorf("decode stored setup: %w", err)
		}
	}
	if err := setup.Validate(s.catalog); err != nil {
		return nil, err
	}

	events, err := combat.ParseEvents(b.Events)
	if err != nil {
		return nil, fmt.Errorf("stored events of %s: %w", b.ID, err)
	}

	built := setup.build(s.catalog)
	res, err := combat.Replay(built.attackers, built.defenders, events)
	if err != nil {
		log.Error().Err(err).Str("gameId", b.GameID).Str("battleId", b.ID).Str("userId", userID).Msg("Replay failed")
		return nil, fmt.Errorf("%w: %v", ErrLogMismatch, err)
	}
	if res.Outcome.String() != b.Outcome {
		log.Error().
			Str("gameId", b.GameID).
			Str("battleId", b.ID).
			Str("userId", userID).
			Str("recorded", b.Outcome).
			Str("replayed", res.Outcome.String()).
			Msg("Replay outcome differs")
		return nil, fmt.Errorf("%w: replay reached %s, recorded %s", ErrLogMismatch, res.Outcome, b.Outcome)
	}

	if err := s.turns.ackReplay(ctx, b.GameID, b.ID, userID); err != nil {
		return nil, err
	}
	acks, err := s.turns.replayAcks(ctx, b.GameID, b.ID)
	if err != nil {
		return nil, err
	}

	s.broadcaster.BroadcastGameEvent(b.GameID, EventBattleReplayed, map[string]string{
		"battle_id": b.ID,
		"user_id":   userID,
	})

	return &ReplayResult{
		BattleID: b.ID,
		Outcome:  res.Outcome.String(),
		Rounds:   res.Rounds,
		Deaths:   res.Deaths,
		Units:    built.states(),
		Acks:     acks,
	}, nil
}

// Get returns a battle with the peers that have acknowledged it.
func (s *BattleService) Get(ctx context.Context, battleID string) (*model.Battle, error) {
	b, err := s.battles.FindByID(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBattleNotFound
	}
	acks, err := s.turns.replayAcks(ctx, b.GameID, b.ID)
	if err != nil {
		return nil, err
	}
	b.Acks = acks
	return b, nil
}

// List returns a game's battles in the order they were fought.
func (s *BattleService) List(ctx context.Context, gameID string) ([]model.Battle, error) {
	return s.battles.ListByGame(ctx, gameID)
}

func groupIDs(groups []GroupInput) []string {
	ids := make([]string, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	return ids
}
