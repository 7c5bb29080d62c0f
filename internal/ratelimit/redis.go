package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SlidingWindow counts events per key in a Redis sorted set whose scores are
// event timestamps; entries older than the window are trimmed on every call.
type SlidingWindow struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

func NewSlidingWindow(client *redis.Client, limit int, window time.Duration, prefix string) *SlidingWindow {
	return &SlidingWindow{client: client, limit: limit, window: window, prefix: prefix}
}

func (l *SlidingWindow) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)
	cutoff := now.Add(-l.window)
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()[:8])

	// Trim, record this event, and count in one MULTI/EXEC so concurrent
	// callers at the boundary each see their own entry in the count and the
	// limit holds exactly.
	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check: %w", err)
	}

	if countCmd.Val() > int64(l.limit) {
		// Rejected calls give their slot back so they do not consume
		// window capacity.
		l.client.ZRem(ctx, redisKey, member)
		return false, nil
	}
	return true, nil
}
