package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRateLimiter(client, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "acct-1")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := limiter.Allow(ctx, "acct-1")
	require.NoError(t, err)
	require.False(t, ok)

	// A different account has its own budget.
	ok, err = limiter.Allow(ctx, "acct-2")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRateLimiterResetsAfterWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRateLimiter(client, 1, time.Second)
	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "acct-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Allow(ctx, "acct-1")
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(2 * time.Second)
	time.Sleep(1100 * time.Millisecond)

	ok, err = limiter.Allow(ctx, "acct-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRateLimiterNilClientNoops(t *testing.T) {
	limiter := NewRateLimiter(nil, 1, time.Minute)
	ok, err := limiter.Allow(context.Background(), "acct-1")
	require.NoError(t, err)
	require.True(t, ok)
}
