package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter enforces fixed-window request budgets backed by redis, so the
// limit holds across replicas. Admin accounts are exempted by the caller.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter constructs a limiter allowing limit requests per window.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{client: client, limit: limit, window: window}
}

// Allow reports whether the account may issue another metered request in the
// current window. A nil client disables limiting (offline/dev mode).
func (l *RateLimiter) Allow(ctx context.Context, accountID string) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	key := rateLimitKey(accountID, time.Now().UTC(), l.window)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("shared: rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("shared: rate limit expire: %w", err)
		}
	}
	return count <= int64(l.limit), nil
}

func rateLimitKey(accountID string, now time.Time, window time.Duration) string {
	bucket := now.Truncate(window).Unix()
	return fmt.Sprintf("ratelimit:%s:%d", accountID, bucket)
}
