package model

import (
	"encoding/json"
	"time"
)

// Battle is a resolved for-keeps fight as stored for peers to replay.
type Battle struct {
	ID         string          `json:"id"`
	GameID     string          `json:"game_id"`
	Turn       int             `json:"turn"`
	ResolverID string          `json:"resolver_id"` // peer that ran the live fight
	Intense    bool            `json:"intense"`
	Outcome    string          `json:"outcome"` // attacker_prevailed, defender_prevailed
	Rounds     int             `json:"rounds"`
	Events     string          `json:"events"` // round:unit:damage ; ...
	Deaths     json.RawMessage `json:"deaths"`
	Setup      json.RawMessage `json:"setup"` // starting groups and tiles
	Acks       []string        `json:"acks,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
