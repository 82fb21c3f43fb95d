// Package combat resolves battles between two sides of grouped units.
//
// A live fight draws randomness and produces an ordered event log; Replay
// applies such a log to the same starting units without any randomness and
// arrives at the same outcome. Only the authoritative peer runs Resolve;
// every other peer runs Replay on the transmitted events.
package combat

// Source provides the randomness for live fights. *math/rand.Rand satisfies it.
type Source interface {
	// Intn returns a value in [0, n).
	Intn(n int) int
}

const (
	normalDie  = 20
	intenseDie = 24
)

// Options configures an encounter.
type Options struct {
	Kind    Kind
	Intense bool // duel with a 24-sided die instead of a 20-sided one
}

// Result is everything a resolved or replayed fight hands back to the caller.
type Result struct {
	Outcome Outcome
	Events  []Event
	Deaths  []Death
	Rounds  int
}

// Encounter is a single attack attempt. It is built fresh for every fight,
// resolved once and then discarded.
type Encounter struct {
	attackers []*Group
	defenders []*Group
	board     Board
	opts      Options

	rosters [2]roster
	bonuses [2]sideBonus
	entryHP map[UnitID]int

	events  []Event
	deaths  []Death
	round   int
	outcome Outcome
}

// NewEncounter builds the fight rosters and computes effective strengths.
// The first attacking group is the primary attacker and the first defending
// group the primary defender; further defending groups are contributors on
// the same tile. Both sides must have at least one living unit.
func NewEncounter(attackers, defenders []*Group, board Board, opts Options) *Encounter {
	if len(attackers) == 0 || len(defenders) == 0 {
		panic("combat: encounter needs groups on both sides")
	}
	if board == nil {
		board = MapBoard(nil)
	}
	e := &Encounter{
		attackers: attackers,
		defenders: defenders,
		board:     board,
		opts:      opts,
		rosters:   [2]roster{buildRoster(attackers), buildRoster(defenders)},
		entryHP:   make(map[UnitID]int),
	}
	if e.rosters[Attacker].empty() || e.rosters[Defender].empty() {
		panic("combat: encounter needs living units on both sides")
	}
	for _, r := range e.rosters {
		for i := range r.fighters {
			e.entryHP[r.fighters[i].Unit.ID] = r.fighters[i].Unit.HP
		}
	}
	e.calculateStrengths()
	return e
}

// Strength returns the effective strength of a participating unit.
func (e *Encounter) Strength(id UnitID) (int, bool) {
	for s := range e.rosters {
		r := &e.rosters[s]
		if i := r.indexOf(id); i >= 0 {
			return r.fighters[i].Strength, true
		}
	}
	return 0, false
}

// SideBonus returns the capped bonus shared by the land units of a side.
func (e *Encounter) SideBonus(s Side) int {
	return e.bonuses[s].total()
}

// Roster returns the combatants of a side in fight order.
func (e *Encounter) Roster(s Side) []Combatant {
	out := make([]Combatant, len(e.rosters[s].fighters))
	copy(out, e.rosters[s].fighters)
	return out
}

// Resolve fights rounds until one side has no units left, then classifies
// the outcome. It runs to completion; there is no round limit.
func (e *Encounter) Resolve(rng Source) Result {
	sides := normalDie
	if e.opts.Intense {
		sides = intenseDie
	}

	for {
		a := e.rosters[Attacker].foremost()
		d := e.rosters[Defender].foremost()
		if a == nil || d == nil {
			break
		}
		e.round++

		loser, winner, side := duel(rng, sides, a, d)
		e.hit(loser, winner, side, 1)
	}

	e.outcome = classify(e.attackers[0], e.defenders)
	e.finish()
	return e.result()
}

// duel draws until exactly one side rolls under its own strength. That side
// lands the hit.
func duel(rng Source, sides int, a, d *Combatant) (loser, winner *Combatant, loserSide Side) {
	for {
		ra := rng.Intn(sides)
		rd := rng.Intn(sides)
		aHits := ra < a.Strength
		dHits := rd < d.Strength
		switch {
		case aHits && !dHits:
			return d, a, Defender
		case dHits && !aHits:
			return a, d, Attacker
		}
	}
}

// hit records damage to c and removes it from its roster at zero hit points.
func (e *Encounter) hit(c, by *Combatant, side Side, damage int) {
	wasAlive := c.Unit.Alive()
	c.Unit.HP = max(c.Unit.HP-damage, 0)
	e.events = append(e.events, Event{Round: e.round, UnitID: c.Unit.ID, Damage: damage})

	if wasAlive && !c.Unit.Alive() {
		r := &e.rosters[side]
		r.fallen = append(r.fallen, r.indexOf(c.Unit.ID))
		e.deaths = append(e.deaths, Death{Round: e.round, UnitID: c.Unit.ID, Side: side})
		if by != nil && e.opts.Kind == ForKeeps {
			by.Unit.Kills++
		}
	}
}

// classify decides the winner from the survivors: the attack fails when the
// primary attacking group is wiped out, and succeeds once no defender stands.
func classify(primary *Group, defenders []*Group) Outcome {
	if primary.AliveCount() == 0 {
		return DefenderPrevailed
	}
	for _, g := range defenders {
		if g.AliveCount() > 0 {
			return Undecided
		}
	}
	return AttackerPrevailed
}

// finish restores hit points after an evaluation fight.
func (e *Encounter) finish() {
	if e.opts.Kind != ForEvaluation {
		return
	}
	for s := range e.rosters {
		r := &e.rosters[s]
		for i := range r.fighters {
			u := r.fighters[i].Unit
			u.HP = e.entryHP[u.ID]
		}
	}
}

func (e *Encounter) result() Result {
	return Result{
		Outcome: e.outcome,
		Events:  e.events,
		Deaths:  e.deaths,
		Rounds:  e.round,
	}
}
