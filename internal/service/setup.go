package service

import (
	"fmt"

	"github.com/freeeve/warband/internal/ruleset"
	"github.com/freeeve/warband/pkg/combat"
)

// BattleSetup describes the starting state of a fight: both sides and the
// tiles they stand on. It is stored with each battle so peers can replay it.
type BattleSetup struct {
	Attackers []GroupInput `json:"attackers"`
	Defenders []GroupInput `json:"defenders"`
	Tiles     []TileInput  `json:"tiles,omitempty"`
}

// GroupInput is one group of units as sent by a client.
type GroupInput struct {
	ID         string          `json:"id"`
	Owner      string          `json:"owner"`
	FightOrder []string        `json:"fight_order,omitempty"`
	Pos        combat.Position `json:"pos"`
	Fortified  bool            `json:"fortified,omitempty"`
	Units      []UnitInput     `json:"units"`
}

// UnitInput is one unit as sent by a client. A nil HP means full health.
type UnitInput struct {
	ID         combat.UnitID `json:"id"`
	Type       string        `json:"type"`
	HP         *int          `json:"hp,omitempty"`
	Waterborne bool          `json:"waterborne,omitempty"`
	ItemBonus  int           `json:"item_bonus,omitempty"`
	Kills      int           `json:"kills,omitempty"`
}

// TileInput describes the terrain and structure of one board position.
type TileInput struct {
	Pos       combat.Position `json:"pos"`
	Terrain   string          `json:"terrain,omitempty"`
	Structure string          `json:"structure,omitempty"`
	Defense   int             `json:"defense,omitempty"`
	Razed     bool            `json:"razed,omitempty"`
}

// UnitState is a unit's condition after a fight or replay.
type UnitState struct {
	ID    combat.UnitID `json:"id"`
	HP    int           `json:"hp"`
	Kills int           `json:"kills"`
}

// Validate checks the setup against a unit catalog without building it.
func (s BattleSetup) Validate(catalog *ruleset.Catalog) error {
	if len(s.Attackers) == 0 {
		return fmt.Errorf("%w: no attacking group", ErrInvalidBattle)
	}
	if len(s.Defenders) == 0 {
		return fmt.Errorf("%w: no defending group", ErrInvalidBattle)
	}

	seenUnits := make(map[combat.UnitID]bool)
	seenGroups := make(map[string]bool)
	for side, groups := range [][]GroupInput{s.Attackers, s.Defenders} {
		alive := 0
		for _, g := range groups {
			if g.ID == "" {
				return fmt.Errorf("%w: group without id", ErrInvalidBattle)
			}
			if seenGroups[g.ID] {
				return fmt.Errorf("%w: duplicate group %s", ErrInvalidBattle, g.ID)
			}
			seenGroups[g.ID] = true
			for _, u := range g.Units {
				if seenUnits[u.ID] {
					return fmt.Errorf("%w: duplicate unit %d", ErrInvalidBattle, u.ID)
				}
				seenUnits[u.ID] = true
				t, ok := catalog.Lookup(u.Type)
				if !ok {
					return fmt.Errorf("%w: unit %d has unknown type %q", ErrInvalidBattle, u.ID, u.Type)
				}
				hp := t.HitPoints
				if u.HP != nil {
					hp = *u.HP
				}
				if hp < 0 || hp > t.HitPoints {
					return fmt.Errorf("%w: unit %d hp %d outside 0..%d", ErrInvalidBattle, u.ID, hp, t.HitPoints)
				}
				if u.ItemBonus < 0 {
					return fmt.Errorf("%w: unit %d has negative item bonus", ErrInvalidBattle, u.ID)
				}
				if hp > 0 {
					alive++
				}
			}
		}
		if alive == 0 {
			return fmt.Errorf("%w: %s side has no living units", ErrInvalidBattle, combat.Side(side))
		}
	}

	primaryAlive := false
	for _, u := range s.Attackers[0].Units {
		primaryAlive = primaryAlive || u.HP == nil || *u.HP > 0
	}
	if !primaryAlive {
		return fmt.Errorf("%w: primary attacking group %s has no living units", ErrInvalidBattle, s.Attackers[0].ID)
	}

	for _, tile := range s.Tiles {
		if _, err := combat.ParseTerrain(tile.Terrain); err != nil {
			return fmt.Errorf("%w: tile %s: %v", ErrInvalidBattle, tile.Pos, err)
		}
		if _, err := combat.ParseStructureKind(tile.Structure); err != nil {
			return fmt.Errorf("%w: tile %s: %v", ErrInvalidBattle, tile.Pos, err)
		}
	}
	return nil
}

// sides is a built setup: fresh groups and units ready for one fight.
type sides struct {
	attackers []*combat.Group
	defenders []*combat.Group
	board     combat.MapBoard
	units     []*combat.Unit
}

// build creates fresh engine objects for a validated setup. Every call
// returns independent units, so a setup can be fought more than once.
func (s BattleSetup) build(catalog *ruleset.Catalog) sides {
	var out sides
	parties := make(map[string]*combat.Party)
	party := func(g GroupInput) *combat.Party {
		if p, ok := parties[g.Owner]; ok {
			return p
		}
		p := catalog.Party(g.Owner)
		if len(g.FightOrder) > 0 {
			p.FightOrder = append([]string(nil), g.FightOrder...)
		}
		parties[g.Owner] = p
		return p
	}

	group := func(g GroupInput) *combat.Group {
		grp := &combat.Group{ID: g.ID, Owner: party(g), Pos: g.Pos, Fortified: g.Fortified}
		for _, in := range g.Units {
			t, _ := catalog.Lookup(in.Type)
			u := &combat.Unit{
				ID:         in.ID,
				Type:       t,
				HP:         t.HitPoints,
				Waterborne: in.Waterborne,
				ItemBonus:  in.ItemBonus,
				Kills:      in.Kills,
			}
			if in.HP != nil {
				u.HP = *in.HP
			}
			grp.Units = append(grp.Units, u)
			out.units = append(out.units, u)
		}
		return grp
	}

	for _, g := range s.Attackers {
		out.attackers = append(out.attackers, group(g))
	}
	for _, g := range s.Defenders {
		out.defenders = append(out.defenders, group(g))
	}

	out.board = make(combat.MapBoard, len(s.Tiles))
	for _, tile := range s.Tiles {
		terrain, _ := combat.ParseTerrain(tile.Terrain)
		kind, _ := combat.ParseStructureKind(tile.Structure)
		out.board[tile.Pos] = combat.Site{
			Terrain:   terrain,
			Structure: combat.Structure{Kind: kind, Defense: tile.Defense, Razed: tile.Razed},
		}
	}
	return out
}

func (s sides) states() []UnitState {
	out := make([]UnitState, len(s.units))
	for i, u := range s.units {
		out[i] = UnitState{ID: u.ID, HP: u.HP, Kills: u.Kills}
	}
	return out
}
