package combat

import "fmt"

// Terrain is the category of a board tile.
type Terrain int

const (
	Open Terrain = iota
	Forest
	Hills
	Mountains
	Swamp
	Water
)

var terrainNames = [...]string{"open", "forest", "hills", "mountains", "swamp", "water"}

func (t Terrain) String() string {
	if t >= 0 && int(t) < len(terrainNames) {
		return terrainNames[t]
	}
	return "unknown"
}

// ParseTerrain maps a terrain name to its constant.
func ParseTerrain(s string) (Terrain, error) {
	if s == "" {
		return Open, nil
	}
	for i, name := range terrainNames {
		if name == s {
			return Terrain(i), nil
		}
	}
	return Open, fmt.Errorf("unknown terrain %q", s)
}

// StructureKind is the type of building standing on a tile.
type StructureKind int

const (
	NoStructure StructureKind = iota
	City
	Ruin
	Temple
	Tower // a fortification; only groups fortified inside use it
)

var structureNames = [...]string{"none", "city", "ruin", "temple", "tower"}

func (k StructureKind) String() string {
	if k >= 0 && int(k) < len(structureNames) {
		return structureNames[k]
	}
	return "unknown"
}

// ParseStructureKind maps a structure name to its constant.
func ParseStructureKind(s string) (StructureKind, error) {
	if s == "" {
		return NoStructure, nil
	}
	for i, name := range structureNames {
		if name == s {
			return StructureKind(i), nil
		}
	}
	return NoStructure, fmt.Errorf("unknown structure %q", s)
}

// Structure describes the building at a position.
type Structure struct {
	Kind    StructureKind
	Defense int  // city defense level
	Razed   bool // a razed city gives no protection
}

// IntactCity returns true for a city that still stands.
func (s Structure) IntactCity() bool {
	return s.Kind == City && !s.Razed
}

// Fortification returns true for a standing fortification.
func (s Structure) Fortification() bool {
	return s.Kind == Tower && !s.Razed
}

// Board answers the terrain questions the bonus calculation needs.
type Board interface {
	Terrain(pos Position) Terrain
	Structure(pos Position) Structure
}

// Site is one tile of a MapBoard.
type Site struct {
	Terrain   Terrain
	Structure Structure
}

// MapBoard is an in-memory Board. Unknown positions are open ground.
type MapBoard map[Position]Site

// Terrain implements Board.
func (b MapBoard) Terrain(pos Position) Terrain {
	return b[pos].Terrain
}

// Structure implements Board.
func (b MapBoard) Structure(pos Position) Structure {
	return b[pos].Structure
}
