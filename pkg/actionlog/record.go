package actionlog

import (
	"encoding/json"
	"fmt"
)

// Record is one entry of a game's per-turn action log.
type Record struct {
	Turn   int
	Seq    int
	Party  string
	Action Action
}

type envelope struct {
	Turn  int             `json:"turn"`
	Seq   int             `json:"seq"`
	Party string          `json:"party"`
	Kind  Kind            `json:"kind"`
	Data  json.RawMessage `json:"data"`
}

// MarshalJSON writes the record as an envelope tagged with the action kind.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Action == nil {
		return nil, fmt.Errorf("%w: record %d/%d has no action", ErrInvalidAction, r.Turn, r.Seq)
	}
	data, err := json.Marshal(r.Action)
	if err != nil {
		return nil, fmt.Errorf("encoding %s action: %w", r.Action.Kind(), err)
	}
	return json.Marshal(envelope{
		Turn:  r.Turn,
		Seq:   r.Seq,
		Party: r.Party,
		Kind:  r.Action.Kind(),
		Data:  data,
	})
}

// UnmarshalJSON decodes an envelope into the concrete action for its kind.
func (r *Record) UnmarshalJSON(b []byte) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	action, err := Decode(env.Kind, env.Data)
	if err != nil {
		return err
	}
	*r = Record{Turn: env.Turn, Seq: env.Seq, Party: env.Party, Action: action}
	return nil
}

// Decode builds the concrete action of kind from its JSON data.
func Decode(kind Kind, data json.RawMessage) (Action, error) {
	var a Action
	var err error
	switch kind {
	case KindFight:
		var f Fight
		err = unmarshalData(kind, data, &f)
		a = f
	case KindMove:
		var m Move
		err = unmarshalData(kind, data, &m)
		a = m
	case KindDisband:
		var d Disband
		err = unmarshalData(kind, data, &d)
		a = d
	case KindEndTurn:
		var e EndTurn
		err = unmarshalData(kind, data, &e)
		a = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func unmarshalData(kind Kind, data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %s action without data", ErrInvalidAction, kind)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decoding %s action: %v", ErrInvalidAction, kind, err)
	}
	return nil
}
