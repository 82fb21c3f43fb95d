package combat

const (
	minStrength   = 1
	maxStrength   = 9
	maxSideBonus  = 5
	cityBaseLevel = 1 // a level-1 city adds nothing
)

// sideBonus is the breakdown of the bonus shared by every land unit of a side.
type sideBonus struct {
	nonLeader int
	leader    int
	structure int
}

func (b sideBonus) total() int {
	return min(b.nonLeader+b.leader+b.structure, maxSideBonus)
}

// calculateStrengths runs the four bonus passes over both rosters. The
// side-wide bonuses and debuffs of both sides are derived before either side
// is modified, so each side sees the other's original composition.
func (e *Encounter) calculateStrengths() {
	atk, def := &e.rosters[Attacker], &e.rosters[Defender]

	for _, r := range []*roster{atk, def} {
		e.baseStrength(r)
		e.terrainModifiers(r)
	}

	atkBonus := e.sideBonus(atk, def, false)
	defBonus := e.sideBonus(def, atk, true)
	atkDebuff := enemyDebuff(def)
	defDebuff := enemyDebuff(atk)

	applySideBonus(atk, atkBonus.total())
	applySideBonus(def, defBonus.total())
	applyDebuff(atk, atkDebuff)
	applyDebuff(def, defDebuff)

	e.bonuses[Attacker] = atkBonus
	e.bonuses[Defender] = defBonus
}

func (e *Encounter) baseStrength(r *roster) {
	for i := range r.fighters {
		c := &r.fighters[i]
		if c.Unit.Waterborne {
			c.Strength = c.Unit.Type.BoatStrength
		} else {
			c.Strength = c.Unit.Type.Strength
		}
		c.Strength = clampStrength(c.Strength)
	}
}

// inStructure reports whether a combatant fights from a city, or fortified
// inside a fortification. Fortifying on open ground does not count.
func (e *Encounter) inStructure(c *Combatant) bool {
	s := e.board.Structure(c.Pos)
	return s.IntactCity() || (c.group.Fortified && s.Fortification())
}

func (e *Encounter) terrainModifiers(r *roster) {
	for i := range r.fighters {
		c := &r.fighters[i]
		ab := c.Unit.Type.Abilities
		add := func(n int) {
			c.Strength = min(c.Strength+n, maxStrength)
		}

		if e.inStructure(c) {
			if ab.Has(AbilityStructurePlus1) {
				add(1)
			}
			if ab.Has(AbilityStructurePlus2) {
				add(2)
			}
			continue
		}

		switch e.board.Terrain(c.Pos) {
		case Open:
			if ab.Has(AbilityOpenPlus1) {
				add(1)
			}
			if ab.Has(AbilityOpenPlus2) {
				add(2)
			}
		case Forest:
			if ab.Has(AbilityForestPlus1) {
				add(1)
			}
		case Hills:
			if ab.Has(AbilityHillsPlus1) {
				add(1)
			}
		}
	}
}

// sideBonus computes the non-leader, leader and structure bonus of friendly,
// with cancellations contributed by enemy.
func (e *Encounter) sideBonus(friendly, enemy *roster, defending bool) sideBonus {
	var b sideBonus

	var leader *Combatant
	for i := range friendly.fighters {
		c := &friendly.fighters[i]
		t := c.Unit.Type
		if t.Leader {
			if leader == nil || t.Strength > leader.Unit.Type.Strength {
				leader = c
			}
			continue
		}
		v := 0
		if t.Abilities.Has(AbilityStackPlus1InHills) && e.board.Terrain(c.Pos) == Hills {
			v = 1
		}
		if t.Abilities.Has(AbilityStackPlus1) {
			v = max(v, 1)
		}
		if t.Abilities.Has(AbilityStackPlus2) {
			v = max(v, 2)
		}
		b.nonLeader = max(b.nonLeader, v)
	}

	if leader != nil {
		b.leader = leader.Unit.ItemBonus + leaderStrengthBonus(leader.Unit.Type.Strength)
	}

	if defending && len(friendly.fighters) > 0 {
		b.structure = e.structureBonus(friendly)
	}

	for i := range enemy.fighters {
		c := &enemy.fighters[i]
		ab := c.Unit.Type.Abilities
		if ab.Has(AbilityCancelNonLeaderBonus) {
			b.nonLeader = 0
		}
		if ab.Has(AbilityCancelLeaderBonus) {
			b.leader = 0
		}
		if ab.Has(AbilityCancelStructureBonus) && !c.Unit.Waterborne {
			b.structure = 0
		}
	}
	return b
}

// structureBonus is the protection the defender's tile offers. The tile is
// that of the primary defending group.
func (e *Encounter) structureBonus(r *roster) int {
	pos := e.defenders[0].Pos
	s := e.board.Structure(pos)
	switch {
	case s.IntactCity():
		return max(s.Defense-cityBaseLevel, 0)
	case s.Kind == Ruin || s.Kind == Temple:
		return 2
	}
	for i := range r.fighters {
		c := &r.fighters[i]
		if c.group.Fortified && c.Unit.Type.Abilities.Has(AbilityFortify) {
			return 1
		}
	}
	return 0
}

func leaderStrengthBonus(strength int) int {
	switch {
	case strength >= 9:
		return 3
	case strength >= 7:
		return 2
	case strength >= 4:
		return 1
	default:
		return 0
	}
}

// enemyDebuff is the strength penalty the enemy roster inflicts.
func enemyDebuff(enemy *roster) int {
	var minus1, minus2 bool
	for i := range enemy.fighters {
		ab := enemy.fighters[i].Unit.Type.Abilities
		minus1 = minus1 || ab.Has(AbilityEnemyMinus1)
		minus2 = minus2 || ab.Has(AbilityEnemyMinus2)
	}
	n := 0
	if minus1 {
		n++
	}
	if minus2 {
		n += 2
	}
	return n
}

func applySideBonus(r *roster, bonus int) {
	for i := range r.fighters {
		c := &r.fighters[i]
		if c.Unit.Waterborne {
			continue
		}
		c.Strength = min(c.Strength+bonus, maxStrength)
	}
}

func applyDebuff(r *roster, n int) {
	for i := range r.fighters {
		c := &r.fighters[i]
		if c.Unit.Waterborne {
			continue
		}
		c.Strength = max(c.Strength-n, minStrength)
	}
}

func clampStrength(s int) int {
	return min(max(s, minStrength), maxStrength)
}
