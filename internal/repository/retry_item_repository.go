package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
)

// retryQueueLockKey serialises append-and-trim across processes.
const retryQueueLockKey = 0x52545259

type RetryItemRepository interface {
	retry.Store
	Count(ctx context.Context) (int, error)
	DeleteByContentItemID(ctx context.Context, tx *sql.Tx, contentItemID int64) (int64, error)
}

type retryItemRepository struct {
	db *sql.DB
}

func NewRetryItemRepository(db *sql.DB) RetryItemRepository {
	return &retryItemRepository{db: db}
}

const retryItemColumns = `id, operation, context, error_code, error_message, severity, retry_count,
	strategy, next_attempt, created_at, last_attempt, claimed_at`

func scanRetryItem(row rowScanner) (*models.RetryItem, error) {
	var item models.RetryItem
	var rc []byte
	err := row.Scan(&item.ID, &item.Operation, &rc, &item.ErrorCode, &item.ErrorMessage, &item.Severity,
		&item.RetryCount, &item.Strategy, &item.NextAttempt, &item.CreatedAt, &item.LastAttempt, &item.ClaimedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rc, &item.Context); err != nil {
		return nil, fmt.Errorf("invalid retry context for %s: %w", item.ID, err)
	}
	return &item, nil
}

func scanRetryItems(rows *sql.Rows) ([]*models.RetryItem, error) {
	defer rows.Close()

	var items []*models.RetryItem
	for rows.Next() {
		item, err := scanRetryItem(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return items, nil
}

// Insert appends item and, when the table grows past capacity, trims it to
// the keep most recent items.
func (r *retryItemRepository) Insert(ctx context.Context, item *models.RetryItem, capacity, keep int) error {
	rc, err := json.Marshal(item.Context)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, retryQueueLockKey); err != nil {
		slog.Info(err.Error())
		return err
	}

	insertQuery := `
		INSERT INTO retry_items (id, operation, context, error_code, error_message, severity,
			retry_count, strategy, next_attempt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = tx.ExecContext(ctx, insertQuery, item.ID, item.Operation, rc, item.ErrorCode, item.ErrorMessage,
		item.Severity, item.RetryCount, item.Strategy, item.NextAttempt, item.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM retry_items`).Scan(&count); err != nil {
		slog.Info(err.Error())
		return err
	}

	if count > capacity {
		trimQuery := `
			DELETE FROM retry_items
			WHERE id IN (
				SELECT id FROM retry_items
				ORDER BY created_at DESC, id DESC
				OFFSET $1
			)
		`
		result, err := tx.ExecContext(ctx, trimQuery, keep)
		if err != nil {
			slog.Info(err.Error())
			return err
		}
		trimmed, _ := result.RowsAffected()
		slog.Warn("retry queue over capacity, dropped oldest items", "capacity", capacity, "dropped", trimmed)
	}

	if err := tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *retryItemRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*models.RetryItem, error) {
	query := `
		WITH due AS (
			SELECT id FROM retry_items
			WHERE next_attempt <= $1
				AND (claimed_at IS NULL OR claimed_at < $2)
			ORDER BY next_attempt
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE retry_items ri
		SET claimed_at = $1
		FROM due
		WHERE ri.id = due.id
		RETURNING ri.id, ri.operation, ri.context, ri.error_code, ri.error_message, ri.severity,
			ri.retry_count, ri.strategy, ri.next_attempt, ri.created_at, ri.last_attempt, ri.claimed_at
	`

	rows, err := r.db.QueryContext(ctx, query, now, now.Add(-lease), limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return scanRetryItems(rows)
}

func (r *retryItemRepository) Claim(ctx context.Context, id string, now time.Time, lease time.Duration) (*models.RetryItem, error) {
	query := `
		UPDATE retry_items
		SET claimed_at = $2
		WHERE id = $1 AND (claimed_at IS NULL OR claimed_at < $3)
		RETURNING ` + retryItemColumns

	item, err := scanRetryItem(r.db.QueryRowContext(ctx, query, id, now, now.Add(-lease)))
	if err == nil {
		return item, nil
	}
	if err != sql.ErrNoRows {
		slog.Info(err.Error())
		return nil, err
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM retry_items WHERE id = $1`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, retry.ErrItemNotFound
	}
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return nil, retry.ErrItemBusy
}

func (r *retryItemRepository) Reschedule(ctx context.Context, item *models.RetryItem) error {
	rc, err := json.Marshal(item.Context)
	if err != nil {
		return err
	}

	query := `
		UPDATE retry_items
		SET context = $2,
			error_code = $3,
			error_message = $4,
			severity = $5,
			retry_count = $6,
			strategy = $7,
			next_attempt = $8,
			last_attempt = $9,
			claimed_at = NULL
		WHERE id = $1
	`
	_, err = r.db.ExecContext(ctx, query, item.ID, rc, item.ErrorCode, item.ErrorMessage, item.Severity,
		item.RetryCount, item.Strategy, item.NextAttempt, item.LastAttempt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Release records a manual attempt's error and frees the lease without
// touching retry_count or next_attempt.
func (r *retryItemRepository) Release(ctx context.Context, item *models.RetryItem) error {
	query := `
		UPDATE retry_items
		SET error_code = $2,
			error_message = $3,
			last_attempt = $4,
			claimed_at = NULL
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, item.ID, item.ErrorCode, item.ErrorMessage, item.LastAttempt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *retryItemRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM retry_items WHERE id = $1`, id); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// DeleteByContentItemID drops every queued channel retry of an item. It runs
// when the item is dispatched again from scratch.
func (r *retryItemRepository) DeleteByContentItemID(ctx context.Context, tx *sql.Tx, contentItemID int64) (int64, error) {
	query := `
		DELETE FROM retry_items
		WHERE operation = $1
			AND (context->>'content_item_id')::bigint = $2
	`
	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.ExecContext(ctx, query, models.OperationPublishChannel, contentItemID)
	} else {
		result, err = r.db.ExecContext(ctx, query, models.OperationPublishChannel, contentItemID)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return result.RowsAffected()
}

func (r *retryItemRepository) List(ctx context.Context, limit int) ([]*models.RetryItem, error) {
	query := `SELECT ` + retryItemColumns + ` FROM retry_items ORDER BY next_attempt LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return scanRetryItems(rows)
}

func (r *retryItemRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM retry_items`).Scan(&n); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return n, nil
}
