package combat

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownUnit means a recorded event names a unit that is not part of
	// the replayed fight. The log and the local state disagree.
	ErrUnknownUnit = errors.New("combat: event references unknown unit")
	// ErrNegativeDamage means a recorded event would heal its unit.
	ErrNegativeDamage = errors.New("combat: event has negative damage")
)

// Replay applies a recorded event log to the starting groups of a fight and
// classifies the result. It draws no randomness and computes no bonuses;
// only the recorded damage matters. Events are applied strictly in order.
//
// Every event is checked before any damage is applied, so an error leaves
// the units untouched.
func Replay(attackers, defenders []*Group, events []Event) (Result, error) {
	if len(attackers) == 0 || len(defenders) == 0 {
		panic("combat: replay needs groups on both sides")
	}
	rp := replayer{rosters: [2]roster{buildRoster(attackers), buildRoster(defenders)}}

	for i, ev := range events {
		if _, _, ok := rp.locate(ev.UnitID); !ok {
			return Result{}, fmt.Errorf("event %d (round %d, unit %d): %w", i, ev.Round, ev.UnitID, ErrUnknownUnit)
		}
		if ev.Damage < 0 {
			return Result{}, fmt.Errorf("event %d (round %d, unit %d): %w", i, ev.Round, ev.UnitID, ErrNegativeDamage)
		}
	}

	for _, ev := range events {
		side, idx, _ := rp.locate(ev.UnitID)
		rp.apply(side, idx, ev)
	}

	return Result{
		Outcome: classify(attackers[0], defenders),
		Events:  events,
		Deaths:  rp.deaths,
		Rounds:  rp.round,
	}, nil
}

type replayer struct {
	rosters [2]roster
	deaths  []Death
	round   int
}

func (rp *replayer) locate(id UnitID) (Side, int, bool) {
	for _, s := range []Side{Attacker, Defender} {
		if i := rp.rosters[s].indexOf(id); i >= 0 {
			return s, i, true
		}
	}
	return 0, 0, false
}

func (rp *replayer) apply(side Side, idx int, ev Event) {
	r := &rp.rosters[side]
	c := &r.fighters[idx]
	// The unit that landed the blow is whoever led the other side this round.
	by := rp.rosters[side.Other()].foremost()

	wasAlive := c.Unit.Alive()
	c.Unit.HP = max(c.Unit.HP-ev.Damage, 0)
	rp.round = max(rp.round, ev.Round)

	if wasAlive && !c.Unit.Alive() {
		r.fallen = append(r.fallen, idx)
		rp.deaths = append(rp.deaths, Death{Round: ev.Round, UnitID: c.Unit.ID, Side: side})
		if by != nil {
			by.Unit.Kills++
		}
	}
}
