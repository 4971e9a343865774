package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// LiveSessionCache tracks the last ping of every session that is still being reported.
// It backs the staleness sweep and is never the source of truth for session state.
type LiveSessionCache interface {
	Touch(ctx context.Context, sessionID string, lastPing time.Time) error
	Remove(ctx context.Context, sessionID string) error
	// Stale returns sessions whose last ping is strictly before cutoff, oldest first
	Stale(ctx context.Context, cutoff time.Time) ([]StaleEntry, error)
}

// StaleEntry is one session that stopped pinging
type StaleEntry struct {
	SessionID string
	LastPing  time.Time
}

type liveSessionCache struct {
	client *redis.Client
	prefix string
}

// NewLiveSessionCache creates a live session cache
func NewLiveSessionCache(client *redis.Client) LiveSessionCache {
	return &liveSessionCache{
		client: client,
		prefix: "emergency",
	}
}

func (c *liveSessionCache) key() string {
	return c.prefix + ":live"
}

// Touch only moves a member forward so a late ping cannot revive an older score
func (c *liveSessionCache) Touch(ctx context.Context, sessionID string, lastPing time.Time) error {
	return c.client.ZAddGT(ctx, c.key(), redis.Z{
		Score:  float64(lastPing.UnixMilli()),
		Member: sessionID,
	}).Err()
}

func (c *liveSessionCache) Remove(ctx context.Context, sessionID string) error {
	return c.client.ZRem(ctx, c.key(), sessionID).Err()
}

func (c *liveSessionCache) Stale(ctx context.Context, cutoff time.Time) ([]StaleEntry, error) {
	results, err := c.client.ZRangeByScoreWithScores(ctx, c.key(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]StaleEntry, 0, len(results))
	for _, z := range results {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, StaleEntry{
			SessionID: id,
			LastPing:  time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return entries, nil
}
