package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/metrics"
	"github.com/redis/go-redis/v9"
)

const quotaTTL = 24 * time.Hour

// Quota is the last usage a platform reported about itself. It is only
// informational; admission is decided by the local counters.
type Quota struct {
	Platform     string    `json:"platform"`
	CallCount    float64   `json:"call_count_pct,omitempty"`
	TotalTime    float64   `json:"total_time_pct,omitempty"`
	TotalCPUTime float64   `json:"total_cputime_pct,omitempty"`
	RegainAccess int       `json:"regain_access_minutes,omitempty"`
	Limit        int       `json:"limit,omitempty"`
	Remaining    int       `json:"remaining,omitempty"`
	ResetAt      time.Time `json:"reset_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type QuotaTracker struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewQuotaTracker(client redis.Cmdable) *QuotaTracker {
	return &QuotaTracker{client: client, now: time.Now}
}

func quotaKey(platform string) string {
	return "ratelimit:quota:" + platform
}

type appUsage struct {
	CallCount    float64 `json:"call_count"`
	TotalTime    float64 `json:"total_time"`
	TotalCPUTime float64 `json:"total_cputime"`
}

type businessUsage struct {
	appUsage
	Type                        string `json:"type"`
	EstimatedTimeToRegainAccess int    `json:"estimated_time_to_regain_access"`
}

// ParseHeaders extracts quota information from a platform response. It
// returns nil when the response carries none.
func ParseHeaders(platform string, header http.Header, now time.Time) *Quota {
	switch platform {
	case "facebook", "instagram":
		return parseGraphUsage(platform, header, now)
	case "tiktok":
		return parseRateLimitHeaders(platform, header, now)
	}
	return nil
}

func parseGraphUsage(platform string, header http.Header, now time.Time) *Quota {
	var q *Quota
	if raw := header.Get("X-App-Usage"); raw != "" {
		var u appUsage
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			q = &Quota{Platform: platform, CallCount: u.CallCount, TotalTime: u.TotalTime, TotalCPUTime: u.TotalCPUTime, UpdatedAt: now}
		}
	}

	raw := header.Get("X-Business-Use-Case-Usage")
	if raw == "" {
		return q
	}
	var byID map[string][]businessUsage
	if err := json.Unmarshal([]byte(raw), &byID); err != nil {
		return q
	}
	for _, usages := range byID {
		for _, u := range usages {
			if q == nil {
				q = &Quota{Platform: platform, UpdatedAt: now}
			}
			q.CallCount = maxFloat(q.CallCount, u.CallCount)
			q.TotalTime = maxFloat(q.TotalTime, u.TotalTime)
			q.TotalCPUTime = maxFloat(q.TotalCPUTime, u.TotalCPUTime)
			if u.EstimatedTimeToRegainAccess > q.RegainAccess {
				q.RegainAccess = u.EstimatedTimeToRegainAccess
			}
		}
	}
	return q
}

func parseRateLimitHeaders(platform string, header http.Header, now time.Time) *Quota {
	limit, errL := strconv.Atoi(header.Get("X-RateLimit-Limit"))
	remaining, errR := strconv.Atoi(header.Get("X-RateLimit-Remaining"))
	if errL != nil && errR != nil {
		return nil
	}
	q := &Quota{Platform: platform, Limit: limit, Remaining: remaining, UpdatedAt: now}
	if limit > 0 {
		q.CallCount = float64(limit-remaining) / float64(limit) * 100
	}
	if reset, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		q.ResetAt = time.Unix(reset, 0).UTC()
	}
	return q
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Record stores the quota carried by header, if any.
func (t *QuotaTracker) Record(ctx context.Context, platform string, header http.Header) error {
	q := ParseHeaders(platform, header, t.now())
	if q == nil {
		return nil
	}
	metrics.QuotaUsage.WithLabelValues(platform, "call_count").Set(q.CallCount)

	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	key := quotaKey(platform)
	_, err = t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "data", data, "updated_at", q.UpdatedAt.Unix())
		pipe.Expire(ctx, key, quotaTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store quota for %s: %w", platform, err)
	}
	return nil
}

// Get returns the last recorded quota or nil.
func (t *QuotaTracker) Get(ctx context.Context, platform string) (*Quota, error) {
	raw, err := t.client.HGet(ctx, quotaKey(platform), "data").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var q Quota
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, err
	}
	return &q, nil
}
