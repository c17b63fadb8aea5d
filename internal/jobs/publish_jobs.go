package job

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	config "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/robfig/cron"
)

type DueSweeper interface {
	SweepDue(ctx context.Context) (int, error)
}

type RetryProcessor interface {
	ProcessDue(ctx context.Context) (retry.SweepStats, error)
}

type FrequencyChecker interface {
	Run(ctx context.Context) (int, error)
}

// guarded wraps fn so a run still in progress makes the next tick a no-op.
func guarded(name string, timeout time.Duration, fn func(ctx context.Context)) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			slog.Debug("previous run still in progress, skipping", "job", name)
			return
		}
		defer running.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	}
}

type Jobs struct {
	Scheduler DueSweeper
	Retries   RetryProcessor
	Monitor   FrequencyChecker
	Tokens    *TokenRefreshJob
}

func (j *Jobs) sweepScheduler(ctx context.Context) {
	n, err := j.Scheduler.SweepDue(ctx)
	if err != nil {
		slog.Error("scheduler sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("scheduler sweep fired jobs", "count", n)
	}
}

func (j *Jobs) sweepRetries(ctx context.Context) {
	stats, err := j.Retries.ProcessDue(ctx)
	if err != nil {
		slog.Error("retry sweep failed", "error", err)
	}
	if stats.Processed > 0 {
		slog.Info("retry sweep finished",
			"processed", stats.Processed,
			"succeeded", stats.Succeeded,
			"rescheduled", stats.Rescheduled,
			"dropped", stats.Dropped)
	}
}

func (j *Jobs) checkFrequency(ctx context.Context) {
	alerts, err := j.Monitor.Run(ctx)
	if err != nil {
		slog.Error("frequency monitor failed", "error", err)
		return
	}
	slog.Info("frequency monitor finished", "alerts", alerts)
}

func (j *Jobs) refreshTokens(ctx context.Context) {
	if n := j.Tokens.RefreshTokens(ctx); n > 0 {
		slog.Info("tokens refreshed", "count", n)
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// Register adds every background job to c at the configured intervals.
func (j *Jobs) Register(c *cron.Cron, cfg config.Scheduler) error {
	entries := []struct {
		name     string
		interval time.Duration
		run      func(ctx context.Context)
	}{
		{"scheduler_sweep", cfg.PollInterval, j.sweepScheduler},
		{"retry_sweep", cfg.RetryInterval, j.sweepRetries},
		{"frequency_monitor", cfg.MonitorInterval, j.checkFrequency},
		{"token_refresh", 10 * time.Minute, j.refreshTokens},
	}
	for _, e := range entries {
		timeout := e.interval
		if timeout < 5*time.Minute {
			timeout = 5 * time.Minute
		}
		if err := c.AddFunc(every(e.interval), guarded(e.name, timeout, e.run)); err != nil {
			return err
		}
	}
	return nil
}
