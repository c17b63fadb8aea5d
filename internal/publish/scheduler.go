package publish

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/metrics"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/repository"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var ErrItemNotFound = errors.New("content item not found")

// Runner dispatches one content item.
type Runner interface {
	Run(ctx context.Context, id int64) (*RunResult, error)
}

// RetryPurger drops the queued channel retries of an item.
type RetryPurger interface {
	DeleteByContentItemID(ctx context.Context, tx *sql.Tx, contentItemID int64) (int64, error)
}

// Trigger delivers a job at its fire time. The due-job sweep covers any
// delivery the trigger misses.
type Trigger interface {
	Trigger(ctx context.Context, job *models.PublishJob) error
}

type Scheduler struct {
	db          *sql.DB
	items       repository.ContentItemRepository
	jobs        repository.PublishJobRepository
	retries     RetryPurger
	runner      Runner
	trigger     Trigger
	concurrency int
	batchSize   int
	now         func() time.Time
}

func NewScheduler(
	db *sql.DB,
	items repository.ContentItemRepository,
	jobs repository.PublishJobRepository,
	retries RetryPurger,
	runner Runner,
	trigger Trigger,
	concurrency, batchSize int) *Scheduler {
	if concurrency <= 0 {
		concurrency = 10
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Scheduler{
		db:          db,
		items:       items,
		jobs:        jobs,
		retries:     retries,
		runner:      runner,
		trigger:     trigger,
		concurrency: concurrency,
		batchSize:   batchSize,
		now:         time.Now,
	}
}

// Schedule binds a single pending job to the item, replacing any earlier
// one and any queued channel retries. A nil or past fireAt fires as soon as
// possible.
func (s *Scheduler) Schedule(ctx context.Context, id int64, fireAt *time.Time) (job *models.PublishJob, err error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrItemNotFound
	}

	now := s.now()
	at := now
	if fireAt != nil && fireAt.After(now) {
		at = *fireAt
	}

	jobID, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	job = &models.PublishJob{ID: jobID, ContentItemID: id, FireAt: at}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if err = s.jobs.Replace(ctx, tx, job); err != nil {
		return nil, fmt.Errorf("error saving publish job: %w", err)
	}
	if _, err = s.retries.DeleteByContentItemID(ctx, tx, id); err != nil {
		return nil, fmt.Errorf("error dropping queued retries: %w", err)
	}
	if err = s.items.MarkScheduled(ctx, tx, id, at); err != nil {
		return nil, fmt.Errorf("error scheduling content item: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if s.trigger != nil {
		if terr := s.trigger.Trigger(ctx, job); terr != nil {
			slog.Warn("failed to enqueue publish job, the sweep will pick it up",
				"job_id", job.ID,
				"content_item_id", id,
				"error", terr)
		}
	}

	slog.Info("content item scheduled", "content_item_id", id, "job_id", job.ID, "fire_at", at)
	return job, nil
}

// Cancel drops the pending job and queued retries and returns the item to
// draft.
func (s *Scheduler) Cancel(ctx context.Context, id int64) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = s.jobs.DeleteByContentItemID(ctx, tx, id); err != nil {
		return fmt.Errorf("error deleting publish job: %w", err)
	}
	if _, err = s.retries.DeleteByContentItemID(ctx, tx, id); err != nil {
		return fmt.Errorf("error dropping queued retries: %w", err)
	}
	if err = s.items.MarkDraft(ctx, tx, id); err != nil {
		return fmt.Errorf("error returning content item to draft: %w", err)
	}
	return tx.Commit()
}

// SweepDue claims every job whose fire time has passed and dispatches them
// with bounded concurrency. It returns the number of jobs fired.
func (s *Scheduler) SweepDue(ctx context.Context) (int, error) {
	fired := 0
	for {
		jobs, err := s.jobs.ClaimDue(ctx, s.now(), s.batchSize)
		if err != nil {
			return fired, err
		}
		if len(jobs) == 0 {
			return fired, nil
		}

		var wg sync.WaitGroup
		semaphore := make(chan struct{}, s.concurrency)

		for _, job := range jobs {
			wg.Add(1)
			semaphore <- struct{}{}

			go func(job *models.PublishJob) {
				defer wg.Done()
				defer func() { <-semaphore }()
				s.dispatch(ctx, job, "sweep")
			}(job)
		}
		wg.Wait()

		fired += len(jobs)
		if len(jobs) < s.batchSize {
			return fired, nil
		}
	}
}

// Fire claims one job by id and dispatches it. A job already claimed by the
// sweep or replaced by a later Schedule is a no-op.
func (s *Scheduler) Fire(ctx context.Context, jobID string) (bool, error) {
	job, err := s.jobs.Claim(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		slog.Debug("publish job already claimed", "job_id", jobID)
		return false, nil
	}
	s.dispatch(ctx, job, "queue")
	return true, nil
}

// PublishNow dispatches the item immediately, dropping any pending job and
// queued retries so nothing publishes it a second time later.
func (s *Scheduler) PublishNow(ctx context.Context, id int64) (*RunResult, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	if _, err := s.jobs.DeleteByContentItemID(ctx, nil, id); err != nil {
		return nil, fmt.Errorf("error deleting publish job: %w", err)
	}
	if _, err := s.retries.DeleteByContentItemID(ctx, nil, id); err != nil {
		return nil, fmt.Errorf("error dropping queued retries: %w", err)
	}

	metrics.JobsFired.WithLabelValues("manual").Inc()
	return s.runner.Run(ctx, id)
}

func (s *Scheduler) dispatch(ctx context.Context, job *models.PublishJob, source string) {
	metrics.JobsFired.WithLabelValues(source).Inc()

	if _, err := s.runner.Run(ctx, job.ContentItemID); err != nil {
		slog.Error("publish job failed",
			"job_id", job.ID,
			"content_item_id", job.ContentItemID,
			"error", err)
		if uerr := s.items.UpdateStatus(ctx, job.ContentItemID, models.StatusFailed); uerr != nil {
			slog.Error("failed to mark content item failed", "content_item_id", job.ContentItemID, "error", uerr)
		}
	}
}
