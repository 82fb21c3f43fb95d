package combat

import "sort"

// Combatant is one unit taking part in an encounter.
type Combatant struct {
	Unit     *Unit
	Pos      Position
	Strength int // effective strength, set once by the bonus pass

	group *Group
}

// roster is the ordered fighting queue of one side. Combatants are stored
// densely and never move; front points at the foremost one still standing.
type roster struct {
	fighters []Combatant
	front    int
	fallen   []int // indexes into fighters, in order of death
}

// buildRoster flattens all units of groups into fight order: the owning
// party's rank for the unit type first, unit id second.
func buildRoster(groups []*Group) roster {
	var r roster
	for _, g := range groups {
		for _, u := range g.Units {
			r.fighters = append(r.fighters, Combatant{Unit: u, Pos: g.Pos, group: g})
		}
	}
	sort.SliceStable(r.fighters, func(i, j int) bool {
		a, b := &r.fighters[i], &r.fighters[j]
		ra, rb := a.group.Owner.Rank(a.Unit.Type.Name), b.group.Owner.Rank(b.Unit.Type.Name)
		if ra != rb {
			return ra < rb
		}
		return a.Unit.ID < b.Unit.ID
	})
	r.skipFallen()
	return r
}

// skipFallen advances front past combatants without hit points.
func (r *roster) skipFallen() {
	for r.front < len(r.fighters) && !r.fighters[r.front].Unit.Alive() {
		r.front++
	}
}

// foremost returns the first combatant still standing, or nil.
func (r *roster) foremost() *Combatant {
	r.skipFallen()
	if r.front >= len(r.fighters) {
		return nil
	}
	return &r.fighters[r.front]
}

// empty reports whether every combatant has fallen.
func (r *roster) empty() bool {
	return r.foremost() == nil
}

// indexOf returns the position of a unit in the roster, or -1.
func (r *roster) indexOf(id UnitID) int {
	for i := range r.fighters {
		if r.fighters[i].Unit.ID == id {
			return i
		}
	}
	return -1
}

// BuildRoster returns the units of groups in the order they will fight.
func BuildRoster(groups []*Group) []*Unit {
	r := buildRoster(groups)
	units := make([]*Unit, len(r.fighters))
	for i := range r.fighters {
		units[i] = r.fighters[i].Unit
	}
	return units
}
