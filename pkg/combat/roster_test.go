package combat

import "testing"

func ids(units []*Unit) []UnitID {
	out := make([]UnitID, len(units))
	for i, u := range units {
		out[i] = u.ID
	}
	return out
}

func TestBuildRosterOrdersByRankThenID(t *testing.T) {
	archer := unitType("archer", 2, 1, 0)
	knight := unitType("knight", 6, 2, 0)
	scout := unitType("scout", 1, 1, 0)
	owner := &Party{Name: "green", FightOrder: []string{"archer", "knight"}}

	g1 := group("g1", owner, Position{}, unit(7, knight), unit(3, scout), unit(5, archer))
	g2 := group("g2", owner, Position{}, unit(2, knight), unit(4, archer))

	got := ids(BuildRoster([]*Group{g1, g2}))
	want := []UnitID{4, 5, 2, 7, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestBuildRosterWithoutFightOrder(t *testing.T) {
	soldier := unitType("soldier", 3, 1, 0)
	g := group("g", nil, Position{}, unit(9, soldier), unit(1, soldier), unit(5, soldier))
	got := ids(BuildRoster([]*Group{g}))
	want := []UnitID{1, 5, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestRosterSkipsFallenUnits(t *testing.T) {
	soldier := unitType("soldier", 3, 2, 0)
	dead := unit(1, soldier)
	dead.HP = 0
	alive := unit(2, soldier)

	r := buildRoster([]*Group{group("g", red, Position{}, dead, alive)})
	front := r.foremost()
	if front == nil || front.Unit.ID != 2 {
		t.Fatalf("expected unit 2 at the front, got %+v", front)
	}

	alive.HP = 0
	if !r.empty() {
		t.Error("expected roster to be empty once every unit has fallen")
	}
}

func TestPartyRank(t *testing.T) {
	p := &Party{FightOrder: []string{"a", "b"}}
	if p.Rank("a") != 0 || p.Rank("b") != 1 {
		t.Errorf("unexpected ranks %d %d", p.Rank("a"), p.Rank("b"))
	}
	if p.Rank("c") <= p.Rank("b") {
		t.Error("unlisted types should fight after listed ones")
	}
	var none *Party
	if none.Rank("a") != p.Rank("c") {
		t.Error("a nil party should rank every type as unlisted")
	}
}
