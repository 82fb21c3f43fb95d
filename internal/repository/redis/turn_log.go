package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Key patterns for per-game turn data.
func turnKey(gameID string, turn int) string {
	return "game:" + gameID + ":turn:" + strconv.Itoa(turn) + ":actions"
}
func seqKey(gameID string, turn int) string {
	return "game:" + gameID + ":turn:" + strconv.Itoa(turn) + ":seq"
}
func acksKey(gameID, battleID string) string { return "game:" + gameID + ":battle:" + battleID + ":acks" }

// turnTTL bounds how long an abandoned game's turn data lingers.
const turnTTL = 7 * 24 * time.Hour

// NextSeq reserves the next sequence number of a turn, starting at 0.
func (c *Client) NextSeq(ctx context.Context, gameID string, turn int) (int, error) {
	key := seqKey(gameID, turn)
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	if n == 1 {
		c.rdb.Expire(ctx, key, turnTTL)
	}
	return int(n - 1), nil
}

// AppendAction pushes an encoded action record onto the turn's log.
func (c *Client) AppendAction(ctx context.Context, gameID string, turn int, record json.RawMessage) error {
	key := turnKey(gameID, turn)
	pipe := c.rdb.TxPipeline()
	pipe.RPush(ctx, key, []byte(record))
	pipe.Expire(ctx, key, turnTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append action: %w", err)
	}
	return nil
}

// Actions returns the turn's action records in the order they were appended.
func (c *Client) Actions(ctx context.Context, gameID string, turn int) ([]json.RawMessage, error) {
	items, err := c.rdb.LRange(ctx, turnKey(gameID, turn), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out, nil
}

// AckReplay records that a peer replayed a battle and reached the same outcome.
func (c *Client) AckReplay(ctx context.Context, gameID, battleID, userID string) error {
	key := acksKey(gameID, battleID)
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, key, userID)
	pipe.Expire(ctx, key, turnTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack replay: %w", err)
	}
	return nil
}

// ReplayAcks returns the peers that have acknowledged a battle.
func (c *Client) ReplayAcks(ctx context.Context, gameID, battleID string) ([]string, error) {
	return c.rdb.SMembers(ctx, acksKey(gameID, battleID)).Result()
}
