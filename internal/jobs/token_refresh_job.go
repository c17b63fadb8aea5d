package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
)

type ExpiringAccounts interface {
	ListExpiring(ctx context.Context, from, to time.Time) ([]*models.SocialAccount, error)
}

type TokenRefresher interface {
	RefreshToken(ctx context.Context, sa *models.SocialAccount) error
}

type TokenRefreshJob struct {
	sr        ExpiringAccounts
	refresher TokenRefresher
	window    time.Duration
	now       func() time.Time
}

func NewTokenRefreshJob(sr ExpiringAccounts, refresher TokenRefresher) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr:        sr,
		refresher: refresher,
		window:    30 * time.Minute,
		now:       time.Now,
	}
}

// RefreshTokens renews every token expiring within the next window. It
// returns how many accounts were refreshed.
func (c *TokenRefreshJob) RefreshTokens(ctx context.Context) int {
	currentTime := c.now()

	accounts, err := c.sr.ListExpiring(ctx, currentTime, currentTime.Add(c.window))
	if err != nil {
		slog.Info(err.Error())
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		refreshed int
	)

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := c.refresher.RefreshToken(ctx, acc); err != nil {
				slog.Info("unable to refresh token", "platform", acc.Platform, "account_id", acc.ID, "error", err)
				return
			}
			mu.Lock()
			refreshed++
			mu.Unlock()
		}(acc)
	}
	wg.Wait()

	return refreshed
}
