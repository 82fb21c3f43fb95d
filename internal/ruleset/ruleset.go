// Package ruleset loads the catalog of unit types from YAML.
package ruleset

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/freeeve/warband/pkg/combat"
)

//go:embed default.yaml
var defaultYAML []byte

var ErrInvalid = errors.New("ruleset: invalid")

type yamlUnit struct {
	Name         string   `yaml:"name"`
	Strength     int      `yaml:"strength"`
	BoatStrength int      `yaml:"boat_strength"`
	HitPoints    int      `yaml:"hit_points"`
	Upkeep       int      `yaml:"upkeep"`
	Leader       bool     `yaml:"leader"`
	Abilities    []string `yaml:"abilities"`
}

type yamlRuleset struct {
	FightOrder []string   `yaml:"fight_order"`
	Units      []yamlUnit `yaml:"units"`
}

// Catalog is an immutable set of unit types keyed by name.
type Catalog struct {
	types      map[string]*combat.UnitType
	fightOrder []string
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ruleset: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic("ruleset: embedded default: " + err.Error())
	}
	return c
}

// LoadOrDefault loads path, or the embedded catalog when path is empty.
func LoadOrDefault(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var raw yamlRuleset
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing ruleset: %w", err)
	}
	if len(raw.Units) == 0 {
		return nil, fmt.Errorf("%w: no unit types", ErrInvalid)
	}

	c := &Catalog{types: make(map[string]*combat.UnitType, len(raw.Units))}
	for i, u := range raw.Units {
		t, err := u.unitType()
		if err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
		if _, dup := c.types[t.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate unit type %q", ErrInvalid, t.Name)
		}
		c.types[t.Name] = t
	}
	for _, name := range raw.FightOrder {
		if _, ok := c.types[name]; !ok {
			return nil, fmt.Errorf("%w: fight order names unknown type %q", ErrInvalid, name)
		}
	}
	c.fightOrder = raw.FightOrder
	return c, nil
}

func (u yamlUnit) unitType() (*combat.UnitType, error) {
	switch {
	case u.Name == "":
		return nil, fmt.Errorf("%w: unit type without a name", ErrInvalid)
	case u.Strength < 1 || u.Strength > 9:
		return nil, fmt.Errorf("%w: %s strength %d outside 1..9", ErrInvalid, u.Name, u.Strength)
	case u.BoatStrength < 1 || u.BoatStrength > 9:
		return nil, fmt.Errorf("%w: %s boat strength %d outside 1..9", ErrInvalid, u.Name, u.BoatStrength)
	case u.HitPoints < 1:
		return nil, fmt.Errorf("%w: %s needs at least one hit point", ErrInvalid, u.Name)
	case u.Upkeep < 0:
		return nil, fmt.Errorf("%w: %s has negative upkeep", ErrInvalid, u.Name)
	}

	var abilities combat.Ability
	for _, name := range u.Abilities {
		a, err := combat.ParseAbility(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, u.Name, err)
		}
		abilities |= a
	}
	return &combat.UnitType{
		Name:         u.Name,
		Strength:     u.Strength,
		BoatStrength: u.BoatStrength,
		HitPoints:    u.HitPoints,
		Upkeep:       u.Upkeep,
		Leader:       u.Leader,
		Abilities:    abilities,
	}, nil
}

// Lookup returns the unit type with the given name.
func (c *Catalog) Lookup(name string) (*combat.UnitType, bool) {
	t, ok := c.types[name]
	return t, ok
}

// Names returns all unit type names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.types))
	for n := range c.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FightOrder is the default order in which a party sends unit types into
// battle. Parties without their own order use it.
func (c *Catalog) FightOrder() []string {
	out := make([]string, len(c.fightOrder))
	copy(out, c.fightOrder)
	return out
}

// Party returns a party that fights in the default order.
func (c *Catalog) Party(name string) *combat.Party {
	return &combat.Party{Name: name, FightOrder: c.FightOrder()}
}
