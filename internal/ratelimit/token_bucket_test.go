package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBucket(t *testing.T, capacity int, window time.Duration) (*RedisTokenBucket, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bucket, err := NewRedisTokenBucket(client, capacity, window, "test:ingest")
	require.NoError(t, err)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	bucket.now = func() time.Time { return clock }
	return bucket, &clock
}

func TestTokenBucketExhaustsAndRefills(t *testing.T) {
	bucket, clock := newBucket(t, 2, time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision, err := bucket.Allow(ctx, "key-a")
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "request %d should pass", i)
	}

	denied, err := bucket.Allow(ctx, "key-a")
	require.NoError(t, err)
	assert.False(t, denied.Allowed)
	assert.Greater(t, denied.RetryAfter, time.Duration(0))

	other, err := bucket.Allow(ctx, "key-b")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "subjects are metered separately")

	*clock = clock.Add(time.Second)
	refilled, err := bucket.Allow(ctx, "key-a")
	require.NoError(t, err)
	assert.True(t, refilled.Allowed)
}

func TestNewRedisTokenBucketValidates(t *testing.T) {
	_, err := NewRedisTokenBucket(nil, 1, time.Second, "")
	assert.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	_, err = NewRedisTokenBucket(client, 0, time.Second, "")
	assert.Error(t, err)
	_, err = NewRedisTokenBucket(client, 1, 0, "")
	assert.Error(t, err)
}
