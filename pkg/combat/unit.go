package combat

import (
	"fmt"
	"math"
	"strings"
)

// UnitID identifies a persistent unit across fights, turns and peers.
type UnitID uint32

// Ability is a bitmask of the combat bonus flags a unit type carries.
type Ability uint32

const (
	AbilityOpenPlus1            Ability = 1 << iota // +1 strength in the open
	AbilityOpenPlus2                                // +2 strength in the open
	AbilityForestPlus1                              // +1 strength in forest
	AbilityHillsPlus1                               // +1 strength in hills
	AbilityStructurePlus1                           // +1 strength in a city or fortification
	AbilityStructurePlus2                           // +2 strength in a city or fortification
	AbilityStackPlus1InHills                        // +1 to the whole side when on hills
	AbilityStackPlus1                               // +1 to the whole side
	AbilityStackPlus2                               // +2 to the whole side
	AbilityCancelStructureBonus                     // zeroes the enemy structure bonus
	AbilityCancelNonLeaderBonus                     // zeroes the enemy non-leader bonus
	AbilityCancelLeaderBonus                        // zeroes the enemy leader bonus
	AbilityEnemyMinus1                              // -1 strength to every enemy
	AbilityEnemyMinus2                              // -2 strength to every enemy
	AbilityFortify                                  // may fortify in the open
)

var abilityNames = []struct {
	a    Ability
	name string
}{
	{AbilityOpenPlus1, "open+1"},
	{AbilityOpenPlus2, "open+2"},
	{AbilityForestPlus1, "forest+1"},
	{AbilityHillsPlus1, "hills+1"},
	{AbilityStructurePlus1, "structure+1"},
	{AbilityStructurePlus2, "structure+2"},
	{AbilityStackPlus1InHills, "stack+1-hills"},
	{AbilityStackPlus1, "stack+1"},
	{AbilityStackPlus2, "stack+2"},
	{AbilityCancelStructureBonus, "cancel-structure"},
	{AbilityCancelNonLeaderBonus, "cancel-non-leader"},
	{AbilityCancelLeaderBonus, "cancel-leader"},
	{AbilityEnemyMinus1, "enemy-1"},
	{AbilityEnemyMinus2, "enemy-2"},
	{AbilityFortify, "fortify"},
}

// Has reports whether all bits of flag are set.
func (a Ability) Has(flag Ability) bool {
	return a&flag == flag
}

func (a Ability) String() string {
	var parts []string
	for _, an := range abilityNames {
		if a.Has(an.a) {
			parts = append(parts, an.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseAbility maps an ability name such as "open+1" to its flag.
func ParseAbility(name string) (Ability, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, an := range abilityNames {
		if an.name == name {
			return an.a, nil
		}
	}
	return 0, fmt.Errorf("unknown ability %q", name)
}

// UnitType holds the static stats shared by every unit of one kind.
type UnitType struct {
	Name         string
	Strength     int
	BoatStrength int
	HitPoints    int
	Upkeep       int
	Leader       bool
	Abilities    Ability
}

// Unit is a persistent army unit. The engine mutates HP and Kills; the caller owns it.
type Unit struct {
	ID         UnitID
	Type       *UnitType
	HP         int
	Waterborne bool
	ItemBonus  int // stack bonus of the equipment a leader carries
	Kills      int
}

// Alive returns true while the unit has hit points left.
func (u *Unit) Alive() bool {
	return u.HP > 0
}

// Position is a board coordinate.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d,%d", p.X, p.Y)
}

// Party is a player or faction controlling groups.
type Party struct {
	Name string
	// FightOrder lists unit type names, first entry fights first.
	FightOrder []string
}

// unranked is the rank of a unit type missing from a party's fight order.
const unranked = math.MaxInt

// Rank returns the fight-order rank of a unit type; lower ranks fight first.
func (p *Party) Rank(typeName string) int {
	if p == nil {
		return unranked
	}
	for i, name := range p.FightOrder {
		if name == typeName {
			return i
		}
	}
	return unranked
}

// Group is a stack of units sharing one board position and owner.
type Group struct {
	ID        string
	Owner     *Party
	Pos       Position
	Fortified bool
	Units     []*Unit
}

// AliveCount returns the number of units in the group with hit points left.
func (g *Group) AliveCount() int {
	n := 0
	for _, u := range g.Units {
		if u.Alive() {
			n++
		}
	}
	return n
}
