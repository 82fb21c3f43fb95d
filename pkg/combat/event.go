package combat

import (
	"fmt"
	"strconv"
	"strings"
)

// Side identifies one of the two parties of an encounter.
type Side int

const (
	Attacker Side = iota
	Defender
)

func (s Side) String() string {
	if s == Attacker {
		return "attacker"
	}
	return "defender"
}

// Other returns the opposing side.
func (s Side) Other() Side {
	return 1 - s
}

// Outcome is the result of an encounter.
type Outcome int

const (
	Undecided Outcome = iota
	AttackerPrevailed
	DefenderPrevailed
)

func (o Outcome) String() string {
	switch o {
	case AttackerPrevailed:
		return "attacker_prevailed"
	case DefenderPrevailed:
		return "defender_prevailed"
	default:
		return "undecided"
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "attacker_prevailed":
		return AttackerPrevailed, nil
	case "defender_prevailed":
		return DefenderPrevailed, nil
	case "undecided":
		return Undecided, nil
	}
	return Undecided, fmt.Errorf("unknown outcome %q", s)
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	v, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Kind says whether a fight's damage is permanent.
type Kind int

const (
	ForKeeps      Kind = iota // damage stays, experience is awarded
	ForEvaluation             // what-if probe; hit points are restored afterwards
)

func (k Kind) String() string {
	if k == ForEvaluation {
		return "evaluation"
	}
	return "keeps"
}

// Event records one unit taking damage. The ordered event list is the
// complete, replayable description of a fight.
type Event struct {
	Round  int    `json:"round"`
	UnitID UnitID `json:"unit_id"`
	Damage int    `json:"damage"`
}

// Death records a unit reaching zero hit points.
type Death struct {
	Round  int    `json:"round"`
	UnitID UnitID `json:"unit_id"`
	Side   Side   `json:"side"`
}

// FormatEvents serializes events as "round:unit:damage" tuples separated by " ; ".
func FormatEvents(events []Event) string {
	var b strings.Builder
	b.Grow(len(events) * 10)
	for i, e := range events {
		if i > 0 {
			b.WriteString(" ; ")
		}
		b.WriteString(strconv.Itoa(e.Round))
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(e.UnitID), 10))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(e.Damage))
	}
	return b.String()
}

// ParseEvents parses the output of FormatEvents.
func ParseEvents(s string) ([]Event, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, " ; ")
	events := make([]Event, 0, len(parts))
	for _, part := range parts {
		e, err := parseEvent(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("events: parsing %q: %w", part, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func parseEvent(s string) (Event, error) {
	fields := strings.Split(s, ":")
	if len(fields) != 3 {
		return Event{}, fmt.Errorf("expected round:unit:damage")
	}
	round, err := strconv.Atoi(fields[0])
	if err != nil {
		return Event{}, fmt.Errorf("round: %w", err)
	}
	id, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return Event{}, fmt.Errorf("unit id: %w", err)
	}
	damage, err := strconv.Atoi(fields[2])
	if err != nil {
		return Event{}, fmt.Errorf("damage: %w", err)
	}
	if round < 1 || damage < 0 {
		return Event{}, fmt.Errorf("out of range")
	}
	return Event{Round: round, UnitID: UnitID(id), Damage: damage}, nil
}
