package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/metrics"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/notify"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrItemNotFound     = errors.New("retry item not found")
	ErrItemBusy         = errors.New("retry item is being processed")
	ErrUnknownOperation = errors.New("no executor registered for operation")
)

type manualKey struct{}

// WithManual marks ctx as an operator-requested retry.
func WithManual(ctx context.Context) context.Context {
	return context.WithValue(ctx, manualKey{}, true)
}

// IsManual reports whether ctx carries an operator-requested retry. Sweep
// retries are not manual and run at low priority.
func IsManual(ctx context.Context) bool {
	manual, _ := ctx.Value(manualKey{}).(bool)
	return manual
}

// Store persists retry items. ClaimDue and Claim stamp claimed_at so two
// sweepers never execute the same item while the lease is live.
type Store interface {
	Insert(ctx context.Context, item *models.RetryItem, capacity, keep int) error
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.RetryItem, error)
	Claim(ctx context.Context, id string, now time.Time, lease time.Duration) (*models.RetryItem, error)
	Reschedule(ctx context.Context, item *models.RetryItem) error
	Release(ctx context.Context, item *models.RetryItem) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, limit int) ([]*models.RetryItem, error)
}

// ExecuteFunc re-runs one failed operation.
type ExecuteFunc func(ctx context.Context, rc models.RetryContext) error

type Options struct {
	Capacity  int
	Keep      int
	Lease     time.Duration
	BatchSize int
}

type Queue struct {
	store     Store
	policy    Policy
	notifier  notify.Notifier
	opts      Options
	now       func() time.Time
	mu        sync.RWMutex
	executors map[string]ExecuteFunc
}

type SweepStats struct {
	Processed   int
	Succeeded   int
	Rescheduled int
	Dropped     int
}

func NewQueue(store Store, policy Policy, notifier notify.Notifier, opts Options) *Queue {
	if opts.Capacity <= 0 {
		opts.Capacity = 1000
	}
	if opts.Keep <= 0 || opts.Keep > opts.Capacity {
		opts.Keep = opts.Capacity * 9 / 10
	}
	if opts.Lease <= 0 {
		opts.Lease = 10 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(nil)
	}
	return &Queue{
		store:     store,
		policy:    policy,
		notifier:  notifier,
		opts:      opts,
		now:       time.Now,
		executors: make(map[string]ExecuteFunc),
	}
}

func (q *Queue) Policy() Policy { return q.policy }

func (q *Queue) Register(operation string, fn ExecuteFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.executors[operation] = fn
}

func (q *Queue) executor(operation string) (ExecuteFunc, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	fn, ok := q.executors[operation]
	return fn, ok
}

// HandleFailure classifies err and either enqueues a retry or reports a
// permanent failure. The returned item is nil when nothing was enqueued.
func (q *Queue) HandleFailure(ctx context.Context, err error, operation string, rc models.RetryContext) (*models.RetryItem, error) {
	perr := AsError(err)
	if perr == nil {
		return nil, nil
	}
	if !q.policy.ShouldRetry(perr, rc) {
		q.reportPermanent(ctx, perr, operation, rc)
		return nil, nil
	}
	return q.Enqueue(ctx, perr, operation, rc)
}

// Enqueue stores a retry for the failure described by perr. retry_count
// becomes rc.RetryCount+1.
func (q *Queue) Enqueue(ctx context.Context, perr *Error, operation string, rc models.RetryContext) (*models.RetryItem, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate retry id: %w", err)
	}

	now := q.now()
	count := rc.RetryCount + 1
	strategy := StrategyFor(perr.Code)
	rc.RetryCount = count

	item := &models.RetryItem{
		ID:           id,
		Operation:    operation,
		Context:      rc,
		ErrorCode:    string(perr.Code),
		ErrorMessage: perr.Message,
		Severity:     string(Classify(perr.Code).Severity),
		RetryCount:   count,
		Strategy:     string(strategy),
		NextAttempt:  q.policy.NextAttempt(now, strategy, count, perr.RetryAfter),
		CreatedAt:    now,
	}

	if err := q.store.Insert(ctx, item, q.opts.Capacity, q.opts.Keep); err != nil {
		return nil, fmt.Errorf("failed to enqueue retry: %w", err)
	}

	metrics.RetriesEnqueued.WithLabelValues(string(rc.Channel), item.ErrorCode).Inc()
	slog.Info("retry scheduled",
		"operation", operation,
		"content_item_id", rc.ContentItemID,
		"channel", rc.Channel,
		"retry_count", count,
		"strategy", item.Strategy,
		"next_attempt", item.NextAttempt)
	return item, nil
}

// ProcessDue executes every item due at the start of the pass. Items
// rescheduled during the pass are never due again before it ends.
func (q *Queue) ProcessDue(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	passStart := q.now()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		items, err := q.store.ClaimDue(ctx, passStart, q.opts.Lease, q.opts.BatchSize)
		if err != nil {
			return stats, fmt.Errorf("failed to claim due retries: %w", err)
		}
		if len(items) == 0 {
			return stats, nil
		}
		for _, item := range items {
			stats.Processed++
			switch q.process(ctx, item) {
			case outcomeSucceeded:
				stats.Succeeded++
			case outcomeRescheduled:
				stats.Rescheduled++
			default:
				stats.Dropped++
			}
		}
		if len(items) < q.opts.BatchSize {
			return stats, nil
		}
	}
}

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeRescheduled
	outcomeDropped
)

func (q *Queue) process(ctx context.Context, item *models.RetryItem) outcome {
	fn, ok := q.executor(item.Operation)
	if !ok {
		slog.Error("dropping retry with unknown operation", "id", item.ID, "operation", item.Operation)
		q.delete(ctx, item.ID)
		return outcomeDropped
	}

	rc := item.Context
	rc.RetryCount = item.RetryCount

	err := fn(ctx, rc)
	now := q.now()
	if err == nil {
		q.delete(ctx, item.ID)
		metrics.RetryOutcomes.WithLabelValues("succeeded").Inc()
		slog.Info("retry succeeded", "id", item.ID, "content_item_id", rc.ContentItemID, "channel", rc.Channel)
		return outcomeSucceeded
	}

	perr := AsError(err)
	rc.RetryCount = item.RetryCount + 1
	if !q.policy.ShouldRetry(perr, rc) {
		q.delete(ctx, item.ID)
		metrics.RetryOutcomes.WithLabelValues("dropped").Inc()
		q.reportPermanent(ctx, perr, item.Operation, rc)
		return outcomeDropped
	}

	strategy := StrategyFor(perr.Code)
	item.RetryCount = rc.RetryCount
	item.Context.RetryCount = rc.RetryCount
	item.Strategy = string(strategy)
	item.ErrorCode = string(perr.Code)
	item.ErrorMessage = perr.Message
	item.Severity = string(Classify(perr.Code).Severity)
	item.LastAttempt = &now
	item.NextAttempt = q.policy.NextAttempt(now, strategy, item.RetryCount, perr.RetryAfter)
	item.ClaimedAt = nil

	if err := q.store.Reschedule(ctx, item); err != nil {
		slog.Error("failed to reschedule retry", "id", item.ID, "error", err)
	}
	metrics.RetryOutcomes.WithLabelValues("rescheduled").Inc()
	return outcomeRescheduled
}

// RetryNow executes one item immediately. Success removes it; failure
// records the error but leaves retry_count and the schedule alone.
func (q *Queue) RetryNow(ctx context.Context, id string) error {
	item, err := q.store.Claim(ctx, id, q.now(), q.opts.Lease)
	if err != nil {
		return err
	}

	fn, ok := q.executor(item.Operation)
	if !ok {
		_ = q.store.Release(ctx, item)
		return fmt.Errorf("%w: %s", ErrUnknownOperation, item.Operation)
	}

	rc := item.Context
	rc.RetryCount = item.RetryCount
	if err := fn(WithManual(ctx), rc); err != nil {
		perr := AsError(err)
		now := q.now()
		item.ErrorCode = string(perr.Code)
		item.ErrorMessage = perr.Message
		item.LastAttempt = &now
		item.ClaimedAt = nil
		if rerr := q.store.Release(ctx, item); rerr != nil {
			slog.Error("failed to release retry", "id", item.ID, "error", rerr)
		}
		return perr
	}

	q.delete(ctx, item.ID)
	metrics.RetryOutcomes.WithLabelValues("succeeded").Inc()
	return nil
}

func (q *Queue) List(ctx context.Context, limit int) ([]*models.RetryItem, error) {
	if limit <= 0 {
		limit = 100
	}
	return q.store.List(ctx, limit)
}

func (q *Queue) delete(ctx context.Context, id string) {
	if err := q.store.Delete(ctx, id); err != nil {
		slog.Error("failed to delete retry", "id", id, "error", err)
	}
}

func (q *Queue) reportPermanent(ctx context.Context, perr *Error, operation string, rc models.RetryContext) {
	severity := Classify(perr.Code).Severity
	slog.Log(ctx, severity.LogLevel(), "permanent failure",
		"operation", operation,
		"content_item_id", rc.ContentItemID,
		"channel", rc.Channel,
		"code", string(perr.Code),
		"retry_count", rc.RetryCount,
		"error", perr.Message)
	metrics.PermanentFailures.WithLabelValues(string(rc.Channel), string(perr.Code)).Inc()

	if severity.AtLeast(notify.SeverityHigh) {
		q.notifier.Notify(ctx, notify.Message{
			Severity: severity,
			Title:    "Publishing failed permanently",
			Text:     perr.Error(),
			Fields: map[string]string{
				"content_item_id": strconv.FormatInt(rc.ContentItemID, 10),
				"channel":         string(rc.Channel),
				"operation":       operation,
			},
		})
	}
}
