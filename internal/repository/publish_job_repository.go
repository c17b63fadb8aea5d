package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
)

type PublishJobRepository interface {
	Replace(ctx context.Context, tx *sql.Tx, job *models.PublishJob) error
	DeleteByContentItemID(ctx context.Context, tx *sql.Tx, contentItemID int64) (bool, error)
	GetByContentItemID(ctx context.Context, contentItemID int64) (*models.PublishJob, error)
	Claim(ctx context.Context, id string) (*models.PublishJob, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.PublishJob, error)
}

type publishJobRepository struct {
	db *sql.DB
}

func NewPublishJobRepository(db *sql.DB) PublishJobRepository {
	return &publishJobRepository{db: db}
}

// Replace drops any job bound to the item and inserts job in its place.
// Both statements must run in the caller's transaction.
func (r *publishJobRepository) Replace(ctx context.Context, tx *sql.Tx, job *models.PublishJob) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM publish_jobs WHERE content_item_id = $1`, job.ContentItemID); err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `
		INSERT INTO publish_jobs (id, content_item_id, fire_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	if err := tx.QueryRowContext(ctx, query, job.ID, job.ContentItemID, job.FireAt).Scan(&job.CreatedAt); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *publishJobRepository) DeleteByContentItemID(ctx context.Context, tx *sql.Tx, contentItemID int64) (bool, error) {
	query := `DELETE FROM publish_jobs WHERE content_item_id = $1`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.ExecContext(ctx, query, contentItemID)
	} else {
		result, err = r.db.ExecContext(ctx, query, contentItemID)
	}
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected > 0, nil
}

func (r *publishJobRepository) GetByContentItemID(ctx context.Context, contentItemID int64) (*models.PublishJob, error) {
	query := `SELECT id, content_item_id, fire_at, created_at FROM publish_jobs WHERE content_item_id = $1`

	var job models.PublishJob
	err := r.db.QueryRowContext(ctx, query, contentItemID).Scan(&job.ID, &job.ContentItemID, &job.FireAt, &job.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &job, nil
}

// Claim deletes the job and returns it. Only one caller can win; the others
// get nil.
func (r *publishJobRepository) Claim(ctx context.Context, id string) (*models.PublishJob, error) {
	query := `
		DELETE FROM publish_jobs
		WHERE id = $1
		RETURNING id, content_item_id, fire_at, created_at
	`

	var job models.PublishJob
	err := r.db.QueryRowContext(ctx, query, id).Scan(&job.ID, &job.ContentItemID, &job.FireAt, &job.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &job, nil
}

// ClaimDue deletes up to limit due jobs and returns them. Rows locked by a
// concurrent sweep are skipped, never returned twice.
func (r *publishJobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.PublishJob, error) {
	query := `
		WITH due AS (
			SELECT id FROM publish_jobs
			WHERE fire_at <= $1
			ORDER BY fire_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		DELETE FROM publish_jobs pj
		USING due
		WHERE pj.id = due.id
		RETURNING pj.id, pj.content_item_id, pj.fire_at, pj.created_at
	`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.PublishJob
	for rows.Next() {
		var job models.PublishJob
		if err := rows.Scan(&job.ID, &job.ContentItemID, &job.FireAt, &job.CreatedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return jobs, nil
}
