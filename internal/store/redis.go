package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const handHistoryLength = 50

func SnapshotKey(tableID string) string {
	return "table:" + tableID + ":snapshot"
}

func HandsKey(tableID string) string {
	return "table:" + tableID + ":hands"
}

// RedisMirror keeps the latest public gameState and a short hand history
// per table, both expiring after ttl of inactivity.
type RedisMirror struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisMirror(client redis.UniversalClient, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisMirror{client: client, ttl: ttl}
}

func (m *RedisMirror) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if err := m.client.Set(ctx, SnapshotKey(snap.TableID), []byte(snap.State), m.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}

func (m *RedisMirror) SaveHand(ctx context.Context, hand HandResult) error {
	data, err := json.Marshal(hand)
	if err != nil {
		return fmt.Errorf("marshal hand: %w", err)
	}
	key := HandsKey(hand.TableID)
	_, err = m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, handHistoryLength-1)
		pipe.Expire(ctx, key, m.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis push hand: %w", err)
	}
	return nil
}

func (m *RedisMirror) LatestState(ctx context.Context, tableID string) ([]byte, error) {
	data, err := m.client.Get(ctx, SnapshotKey(tableID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// RecentHands returns up to limit hands, newest first.
func (m *RedisMirror) RecentHands(ctx context.Context, tableID string, limit int) ([]HandResult, error) {
	if limit <= 0 || limit > handHistoryLength {
		limit = handHistoryLength
	}
	raw, err := m.client.LRange(ctx, HandsKey(tableID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	hands := make([]HandResult, 0, len(raw))
	for _, item := range raw {
		var h HandResult
		if err := json.Unmarshal([]byte(item), &h); err != nil {
			return nil, fmt.Errorf("decode hand: %w", err)
		}
		hands = append(hands, h)
	}
	return hands, nil
}
