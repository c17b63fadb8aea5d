package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	config "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(limits map[string]config.PlatformLimit, now time.Time) (*Limiter, *MemoryStore) {
	store := NewMemoryStore()
	store.now = func() time.Time { return now }
	l := NewLimiter(store, nil, limits)
	l.now = func() time.Time { return now }
	return l, store
}

func TestBurstLimitExceeded(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 3, 10, 1, 0, 0, time.UTC)
	l, _ := newTestLimiter(nil, now)

	for i := 0; i < 51; i++ {
		require.NoError(t, l.RecordRequest(ctx, "facebook", nil))
	}

	d, err := l.IsAllowed(ctx, "facebook")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Burst limit exceeded", d.Reason)
	assert.Equal(t, WindowBurst, d.Window)
	assert.Equal(t, 4*time.Minute, d.RetryAfter)

	other, err := l.IsAllowed(ctx, "instagram")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestHourlyLimitExceeded(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 3, 10, 35, 0, 0, time.UTC)
	l, _ := newTestLimiter(map[string]config.PlatformLimit{
		"facebook": {Hourly: 200, Daily: 5000, Burst: 500},
	}, now)

	for i := 0; i < 199; i++ {
		require.NoError(t, l.RecordRequest(ctx, "facebook", nil))
	}
	d, err := l.IsAllowed(ctx, "facebook")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	require.NoError(t, l.RecordRequest(ctx, "facebook", nil))
	d, err = l.IsAllowed(ctx, "facebook")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Hourly limit exceeded", d.Reason)
	assert.Equal(t, int64(200), d.Used)
	assert.Equal(t, 200, d.Limit)
	assert.Equal(t, 25*time.Minute, d.RetryAfter)
}

func TestUnconfiguredPlatformIsAlwaysAllowed(t *testing.T) {
	ctx := context.Background()
	l, store := newTestLimiter(nil, time.Now())

	for i := 0; i < 1000; i++ {
		require.NoError(t, l.RecordRequest(ctx, "blog", nil))
	}
	d, err := l.IsAllowed(ctx, "blog")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Empty(t, store.entries)
}

func TestCountersResetWithTheWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 3, 10, 4, 0, 0, time.UTC)
	l, store := newTestLimiter(nil, now)

	for i := 0; i < 50; i++ {
		require.NoError(t, l.RecordRequest(ctx, "tiktok", nil))
	}
	d, err := l.IsAllowed(ctx, "tiktok")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	later := now.Add(2 * time.Minute)
	l.now = func() time.Time { return later }
	store.now = func() time.Time { return later }

	d, err = l.IsAllowed(ctx, "tiktok")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestMemoryStoreConcurrentIncr(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Incr(context.Background(), "k", time.Minute)
		}()
	}
	wg.Wait()

	n, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)
	ctx := context.Background()

	n, err := store.Get(ctx, "ratelimit:facebook:hourly:1")
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 0; i < 3; i++ {
		n, err = store.Incr(ctx, "ratelimit:facebook:hourly:1", time.Hour)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(3), n)
	assert.Equal(t, time.Hour, mr.TTL("ratelimit:facebook:hourly:1"))

	mr.FastForward(time.Hour)
	n, err = store.Get(ctx, "ratelimit:facebook:hourly:1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisBackedLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	l := NewLimiter(NewRedisStore(client), NewQuotaTracker(client), map[string]config.PlatformLimit{
		"youtube": {Hourly: 100, Daily: 10000, Burst: 2},
	})

	require.NoError(t, l.RecordRequest(ctx, "youtube", http.Header{}))
	require.NoError(t, l.RecordRequest(ctx, "youtube", http.Header{}))

	d, err := l.IsAllowed(ctx, "youtube")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "Burst limit exceeded", d.Reason)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, 5*time.Minute)
}

func TestHealthAndSmartDelay(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(map[string]config.PlatformLimit{
		"instagram": {Hourly: 10, Daily: 10, Burst: 100},
	}, time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC))

	var slept []time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	h, err := l.Health(ctx, "instagram")
	require.NoError(t, err)
	assert.Equal(t, 100, h)
	require.NoError(t, l.SmartDelay(ctx, "instagram", true))
	assert.Empty(t, slept)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.RecordRequest(ctx, "instagram", nil))
	}
	h, err = l.Health(ctx, "instagram")
	require.NoError(t, err)
	assert.Equal(t, 50, h)

	require.NoError(t, l.SmartDelay(ctx, "instagram", false))
	assert.Empty(t, slept, "normal priority is never delayed")

	require.NoError(t, l.SmartDelay(ctx, "instagram", true))
	assert.Equal(t, []time.Duration{10 * time.Second}, slept)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.RecordRequest(ctx, "instagram", nil))
	}
	h, err = l.Health(ctx, "instagram")
	require.NoError(t, err)
	assert.Equal(t, 0, h)
}

func TestUsage(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(nil, time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC))
	for i := 0; i < 3; i++ {
		require.NoError(t, l.RecordRequest(ctx, "tiktok", nil))
	}

	u, err := l.Usage(ctx, "tiktok")
	require.NoError(t, err)
	require.Len(t, u.Windows, 3)
	assert.True(t, u.Limited)
	assert.Equal(t, WindowBurst, u.Windows[0].Window)
	assert.Equal(t, int64(17), u.Windows[0].Remaining)
	assert.Equal(t, int64(997), u.Windows[2].Remaining)
}
