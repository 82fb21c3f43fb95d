// Package actionlog defines the per-turn action records that peers exchange.
// An action is one of a closed set of kinds; a fight action carries the
// event log that other peers replay.
package actionlog

import (
	"errors"
	"fmt"

	"github.com/freeeve/warband/pkg/combat"
)

// Kind names an action variant on the wire.
type Kind string

const (
	KindFight   Kind = "fight"
	KindMove    Kind = "move"
	KindDisband Kind = "disband"
	KindEndTurn Kind = "end_turn"
)

var (
	ErrUnknownKind   = errors.New("actionlog: unknown action kind")
	ErrInvalidAction = errors.New("actionlog: invalid action")
)

// Action is implemented only by the types in this package: Fight, Move,
// Disband and EndTurn.
type Action interface {
	Kind() Kind
	Validate() error
	isAction()
}

// Fight is a resolved battle. Peers other than the one that resolved it
// replay Events against their own copy of the groups.
type Fight struct {
	BattleID  string          `json:"battle_id"`
	Attackers []string        `json:"attackers"`
	Defenders []string        `json:"defenders"`
	Pos       combat.Position `json:"pos"`
	Outcome   combat.Outcome  `json:"outcome"`
	Events    []combat.Event  `json:"events"`
}

// Move relocates a group along a path of tiles.
type Move struct {
	GroupID string            `json:"group_id"`
	Path    []combat.Position `json:"path"`
}

// Disband removes units from a group.
type Disband struct {
	GroupID string          `json:"group_id"`
	UnitIDs []combat.UnitID `json:"unit_ids"`
}

// EndTurn closes a party's turn.
type EndTurn struct {
	Party string `json:"party"`
}

func (Fight) Kind() Kind   { return KindFight }
func (Move) Kind() Kind    { return KindMove }
func (Disband) Kind() Kind { return KindDisband }
func (EndTurn) Kind() Kind { return KindEndTurn }

func (Fight) isAction()   {}
func (Move) isAction()    {}
func (Disband) isAction() {}
func (EndTurn) isAction() {}

func (f Fight) Validate() error {
	switch {
	case f.BattleID == "":
		return fmt.Errorf("%w: fight without battle id", ErrInvalidAction)
	case len(f.Attackers) == 0 || len(f.Defenders) == 0:
		return fmt.Errorf("%w: fight %s needs groups on both sides", ErrInvalidAction, f.BattleID)
	}
	for i, ev := range f.Events {
		if ev.Round < 1 || ev.Damage < 0 {
			return fmt.Errorf("%w: fight %s event %d out of range", ErrInvalidAction, f.BattleID, i)
		}
		if i > 0 && ev.Round < f.Events[i-1].Round {
			return fmt.Errorf("%w: fight %s events out of order at %d", ErrInvalidAction, f.BattleID, i)
		}
	}
	return nil
}

func (m Move) Validate() error {
	if m.GroupID == "" {
		return fmt.Errorf("%w: move without group", ErrInvalidAction)
	}
	if len(m.Path) < 2 {
		return fmt.Errorf("%w: move of %s needs at least two tiles", ErrInvalidAction, m.GroupID)
	}
	return nil
}

func (d Disband) Validate() error {
	if d.GroupID == "" {
		return fmt.Errorf("%w: disband without group", ErrInvalidAction)
	}
	if len(d.UnitIDs) == 0 {
		return fmt.Errorf("%w: disband of %s names no units", ErrInvalidAction, d.GroupID)
	}
	return nil
}

func (e EndTurn) Validate() error {
	if e.Party == "" {
		return fmt.Errorf("%w: end of turn without party", ErrInvalidAction)
	}
	return nil
}

// Summary renders a one-line description of an action.
func Summary(a Action) string {
	switch a := a.(type) {
	case Fight:
		return fmt.Sprintf("fight %s at %s: %s after %d hits [%s]",
			a.BattleID, a.Pos, a.Outcome, len(a.Events), combat.FormatEvents(a.Events))
	case Move:
		if len(a.Path) == 0 {
			return "move " + a.GroupID
		}
		return fmt.Sprintf("move %s %s -> %s", a.GroupID, a.Path[0], a.Path[len(a.Path)-1])
	case Disband:
		return fmt.Sprintf("disband %d units of %s", len(a.UnitIDs), a.GroupID)
	case EndTurn:
		return "end turn " + a.Party
	}
	return "unknown action"
}
