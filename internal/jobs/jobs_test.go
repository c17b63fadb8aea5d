package job

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	config "github.com/franpass87/FP-Social-Auto-Publisher-sub000/configs"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/robfig/cron"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpiring struct {
	from, to time.Time
	accounts []*models.SocialAccount
}

func (f *fakeExpiring) ListExpiring(_ context.Context, from, to time.Time) ([]*models.SocialAccount, error) {
	f.from, f.to = from, to
	return f.accounts, nil
}

type fakeRefresher struct {
	mu   sync.Mutex
	seen []int64
}

func (f *fakeRefresher) RefreshToken(_ context.Context, sa *models.SocialAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, sa.ID)
	if sa.Platform == "tiktok" {
		return errors.New("invalid refresh token")
	}
	return nil
}

func TestRefreshTokensCountsSuccesses(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	src := &fakeExpiring{accounts: []*models.SocialAccount{
		{ID: 1, Platform: "youtube"},
		{ID: 2, Platform: "tiktok"},
		{ID: 3, Platform: "instagram"},
	}}
	ref := &fakeRefresher{}
	j := NewTokenRefreshJob(src, ref)
	j.now = func() time.Time { return now }

	assert.Equal(t, 2, j.RefreshTokens(context.Background()))
	assert.ElementsMatch(t, []int64{1, 2, 3}, ref.seen)
	assert.Equal(t, now, src.from)
	assert.Equal(t, now.Add(30*time.Minute), src.to)
}

func TestGuardedSkipsOverlappingRuns(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	run := guarded("test", time.Minute, func(ctx context.Context) {
		calls.Add(1)
		close(started)
		<-release
	})

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	<-started
	run()
	close(release)
	<-done

	assert.Equal(t, int32(1), calls.Load())
}

type stubSweeper struct{ calls int }

func (s *stubSweeper) SweepDue(context.Context) (int, error) {
	s.calls++
	return 3, nil
}

type stubRetries struct{ calls int }

func (s *stubRetries) ProcessDue(context.Context) (retry.SweepStats, error) {
	s.calls++
	return retry.SweepStats{Processed: 2, Succeeded: 1, Dropped: 1}, nil
}

type stubMonitor struct{ calls int }

func (s *stubMonitor) Run(context.Context) (int, error) {
	s.calls++
	return 0, nil
}

func TestRegisterAddsEveryJob(t *testing.T) {
	c := cron.New()
	j := &Jobs{
		Scheduler: &stubSweeper{},
		Retries:   &stubRetries{},
		Monitor:   &stubMonitor{},
		Tokens:    NewTokenRefreshJob(&fakeExpiring{}, &fakeRefresher{}),
	}
	require.NoError(t, j.Register(c, config.Scheduler{
		PollInterval:    time.Minute,
		RetryInterval:   15 * time.Minute,
		MonitorInterval: time.Hour,
	}))
	assert.Len(t, c.Entries(), 4)
}

func TestJobRunners(t *testing.T) {
	ctx := context.Background()
	sweeper, retries, monitor := &stubSweeper{}, &stubRetries{}, &stubMonitor{}
	j := &Jobs{Scheduler: sweeper, Retries: retries, Monitor: monitor}

	j.sweepScheduler(ctx)
	j.sweepRetries(ctx)
	j.checkFrequency(ctx)

	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 1, retries.calls)
	assert.Equal(t, 1, monitor.calls)
}
