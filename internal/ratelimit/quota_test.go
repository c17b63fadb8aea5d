package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFacebookAppUsage(t *testing.T) {
	h := http.Header{}
	h.Set("X-App-Usage", `{"call_count":28,"total_time":25,"total_cputime":9}`)

	q := ParseHeaders("facebook", h, time.Now())
	require.NotNil(t, q)
	assert.Equal(t, 28.0, q.CallCount)
	assert.Equal(t, 25.0, q.TotalTime)
	assert.Equal(t, 9.0, q.TotalCPUTime)
}

func TestParseBusinessUseCaseUsage(t *testing.T) {
	h := http.Header{}
	h.Set("X-Business-Use-Case-Usage", `{"1234":[{"type":"pages","call_count":96,"total_cputime":10,"total_time":40,"estimated_time_to_regain_access":7}]}`)

	q := ParseHeaders("instagram", h, time.Now())
	require.NotNil(t, q)
	assert.Equal(t, 96.0, q.CallCount)
	assert.Equal(t, 7, q.RegainAccess)
}

func TestParseTiktokRateLimit(t *testing.T) {
	h := http.Header{}
	h.Set("X-RateLimit-Limit", "600")
	h.Set("X-RateLimit-Remaining", "150")
	h.Set("X-RateLimit-Reset", "1740999600")

	q := ParseHeaders("tiktok", h, time.Now())
	require.NotNil(t, q)
	assert.Equal(t, 600, q.Limit)
	assert.Equal(t, 150, q.Remaining)
	assert.Equal(t, 75.0, q.CallCount)
	assert.Equal(t, int64(1740999600), q.ResetAt.Unix())
}

func TestParseHeadersWithoutQuota(t *testing.T) {
	assert.Nil(t, ParseHeaders("facebook", http.Header{}, time.Now()))
	assert.Nil(t, ParseHeaders("tiktok", http.Header{}, time.Now()))
	assert.Nil(t, ParseHeaders("youtube", http.Header{"X-App-Usage": {"{}"}}, time.Now()))
}

func TestQuotaTrackerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	tracker := NewQuotaTracker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	q, err := tracker.Get(ctx, "facebook")
	require.NoError(t, err)
	assert.Nil(t, q)

	h := http.Header{}
	h.Set("X-App-Usage", `{"call_count":61,"total_time":3,"total_cputime":2}`)
	require.NoError(t, tracker.Record(ctx, "facebook", h))

	q, err = tracker.Get(ctx, "facebook")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, 61.0, q.CallCount)
	assert.Equal(t, quotaTTL, mr.TTL("ratelimit:quota:facebook"))
}
