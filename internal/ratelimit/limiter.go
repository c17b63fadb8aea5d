package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	config "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/metrics"
)

type Window string

const (
	WindowBurst  Window = "burst"
	WindowHourly Window = "hourly"
	WindowDaily  Window = "daily"
)

var windowLength = map[Window]time.Duration{
	WindowBurst:  5 * time.Minute,
	WindowHourly: time.Hour,
	WindowDaily:  24 * time.Hour,
}

var denialReason = map[Window]string{
	WindowBurst:  "Burst limit exceeded",
	WindowHourly: "Hourly limit exceeded",
	WindowDaily:  "Daily limit exceeded",
}

// checkOrder is the order windows are evaluated in; the first exhausted one
// decides the denial.
var checkOrder = []Window{WindowBurst, WindowHourly, WindowDaily}

type Decision struct {
	Allowed    bool          `json:"allowed"`
	Reason     string        `json:"reason,omitempty"`
	Window     Window        `json:"window,omitempty"`
	Used       int64         `json:"used,omitempty"`
	Limit      int           `json:"limit,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

type WindowUsage struct {
	Window    Window    `json:"window"`
	Used      int64     `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

type Usage struct {
	Platform string        `json:"platform"`
	Limited  bool          `json:"limited"`
	Windows  []WindowUsage `json:"windows"`
	Health   int           `json:"health"`
	Quota    *Quota        `json:"quota,omitempty"`
}

type Limiter struct {
	store  CounterStore
	quota  *QuotaTracker
	limits map[string]config.PlatformLimit
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewLimiter(store CounterStore, quota *QuotaTracker, limits map[string]config.PlatformLimit) *Limiter {
	if limits == nil {
		limits = config.DefaultRateLimits
	}
	return &Limiter{
		store:  store,
		quota:  quota,
		limits: limits,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func counterKey(platform string, w Window, bucket int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", platform, w, bucket)
}

// bucket returns the fixed window index containing now and when it ends.
func bucket(now time.Time, w Window) (int64, time.Time) {
	secs := int64(windowLength[w] / time.Second)
	b := now.Unix() / secs
	return b, time.Unix((b+1)*secs, 0)
}

func (w Window) limit(l config.PlatformLimit) int {
	switch w {
	case WindowBurst:
		return l.Burst
	case WindowHourly:
		return l.Hourly
	default:
		return l.Daily
	}
}

func (l *Limiter) limitFor(platform string) (config.PlatformLimit, bool) {
	lim, ok := l.limits[strings.ToLower(platform)]
	return lim, ok
}

// IsAllowed checks the burst, hourly and daily windows. Platforms without a
// configured budget are always admitted. A window with limit 0 is unlimited.
func (l *Limiter) IsAllowed(ctx context.Context, platform string) (Decision, error) {
	lim, ok := l.limitFor(platform)
	if !ok {
		return Decision{Allowed: true}, nil
	}

	now := l.now()
	for _, w := range checkOrder {
		budget := w.limit(lim)
		if budget <= 0 {
			continue
		}
		b, end := bucket(now, w)
		used, err := l.store.Get(ctx, counterKey(platform, w, b))
		if err != nil {
			return Decision{}, err
		}
		if used >= int64(budget) {
			metrics.RateLimitDenials.WithLabelValues(platform, string(w)).Inc()
			return Decision{
				Allowed:    false,
				Reason:     denialReason[w],
				Window:     w,
				Used:       used,
				Limit:      budget,
				RetryAfter: end.Sub(now),
			}, nil
		}
	}
	return Decision{Allowed: true}, nil
}

// RecordRequest counts one request made to platform in every window and feeds
// any quota headers to the tracker.
func (l *Limiter) RecordRequest(ctx context.Context, platform string, header http.Header) error {
	if _, ok := l.limitFor(platform); ok {
		now := l.now()
		for _, w := range checkOrder {
			b, _ := bucket(now, w)
			if _, err := l.store.Incr(ctx, counterKey(platform, w, b), windowLength[w]); err != nil {
				return err
			}
		}
	}

	if l.quota != nil && header != nil {
		if err := l.quota.Record(ctx, platform, header); err != nil {
			slog.Warn("failed to record platform quota", "platform", platform, "error", err)
		}
	}
	return nil
}

func (l *Limiter) Usage(ctx context.Context, platform string) (*Usage, error) {
	u := &Usage{Platform: platform, Health: 100}
	lim, ok := l.limitFor(platform)
	if !ok {
		return u, nil
	}
	u.Limited = true

	now := l.now()
	for _, w := range checkOrder {
		b, end := bucket(now, w)
		used, err := l.store.Get(ctx, counterKey(platform, w, b))
		if err != nil {
			return nil, err
		}
		budget := w.limit(lim)
		remaining := int64(budget) - used
		if remaining < 0 {
			remaining = 0
		}
		u.Windows = append(u.Windows, WindowUsage{Window: w, Used: used, Limit: budget, Remaining: remaining, ResetsAt: end})
	}
	u.Health = healthFrom(u.Windows)

	if l.quota != nil {
		q, err := l.quota.Get(ctx, platform)
		if err != nil {
			slog.Warn("failed to read platform quota", "platform", platform, "error", err)
		} else {
			u.Quota = q
		}
	}
	return u, nil
}

// Health is 100 - (hourly%*0.3 + daily%*0.7), clamped to [0,100].
func (l *Limiter) Health(ctx context.Context, platform string) (int, error) {
	u, err := l.Usage(ctx, platform)
	if err != nil {
		return 0, err
	}
	return u.Health, nil
}

func healthFrom(windows []WindowUsage) int {
	pct := func(w WindowUsage) float64 {
		if w.Limit <= 0 {
			return 0
		}
		p := float64(w.Used) / float64(w.Limit) * 100
		if p > 100 {
			p = 100
		}
		return p
	}
	var hourly, daily float64
	for _, w := range windows {
		switch w.Window {
		case WindowHourly:
			hourly = pct(w)
		case WindowDaily:
			daily = pct(w)
		}
	}
	h := 100 - (hourly*0.3 + daily*0.7)
	if h < 0 {
		h = 0
	}
	return int(math.Round(h))
}

const healthThreshold = 60

// SmartDelay slows low priority callers down while a platform is unhealthy.
// It never refuses a call.
func (l *Limiter) SmartDelay(ctx context.Context, platform string, lowPriority bool) error {
	if !lowPriority {
		return nil
	}
	health, err := l.Health(ctx, platform)
	if err != nil {
		return err
	}
	if health >= healthThreshold {
		return nil
	}
	// one second per point under the threshold
	d := time.Duration(healthThreshold-health) * time.Second
	slog.Debug("delaying low priority publish", "platform", platform, "health", health, "delay", d)
	return l.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
