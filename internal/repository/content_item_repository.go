package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/lib/pq"
)

var ErrStatusConflict = errors.New("content item status does not allow this change")

// PublishingLease is how long an item may sit in publishing before another
// dispatch or a reschedule may take it over. A crashed dispatch leaves the
// item behind in that state.
const PublishingLease = 30 * time.Minute

type ContentItemRepository interface {
	Create(ctx context.Context, tx *sql.Tx, item *models.ContentItem) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ContentItem, error)
	ListByClientID(ctx context.Context, clientID int64) ([]*models.ContentItem, error)
	MarkScheduled(ctx context.Context, tx *sql.Tx, id int64, scheduledAt time.Time) error
	MarkDraft(ctx context.Context, tx *sql.Tx, id int64) error
	MarkPublishing(ctx context.Context, id int64) (bool, error)
	UpdateStatus(ctx context.Context, id int64, status models.ContentStatus) error
	Finish(ctx context.Context, id int64, status models.ContentStatus, publishLog map[models.Channel]string) error
	MergePublishLog(ctx context.Context, id int64, channel models.Channel, message string, promote bool) error
}

type contentItemRepository struct {
	db *sql.DB
}

func NewContentItemRepository(db *sql.DB) ContentItemRepository {
	return &contentItemRepository{db: db}
}

func channelsToStrings(channels []models.Channel) []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = string(c)
	}
	return out
}

func (r *contentItemRepository) Create(ctx context.Context, tx *sql.Tx, item *models.ContentItem) (int64, error) {
	query := `
		INSERT INTO content_items (client_id, title, body, permalink, due_date, labels, channels, overrides, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	overrides, err := json.Marshal(nonNilLog(item.Overrides))
	if err != nil {
		return 0, err
	}
	status := item.Status
	if status == "" {
		status = models.StatusDraft
	}

	args := []interface{}{
		item.ClientID,
		item.Title,
		item.Body,
		item.Permalink,
		item.DueDate,
		pq.Array(item.Labels),
		pq.Array(channelsToStrings(item.Channels)),
		overrides,
		status,
	}

	var id int64
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

const selectContentItem = `
	SELECT ci.id, ci.client_id, c.name, ci.title, ci.body, ci.permalink, ci.due_date,
		ci.labels, ci.channels, ci.overrides, ci.scheduled_at, ci.status, ci.publish_log,
		ci.created_at, ci.updated_at
	FROM content_items ci
	JOIN clients c ON c.id = ci.client_id
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContentItem(row rowScanner) (*models.ContentItem, error) {
	var (
		item       models.ContentItem
		channels   []string
		overrides  []byte
		publishLog []byte
	)
	err := row.Scan(&item.ID, &item.ClientID, &item.ClientName, &item.Title, &item.Body, &item.Permalink,
		&item.DueDate, pq.Array(&item.Labels), pq.Array(&channels), &overrides, &item.ScheduledAt,
		&item.Status, &publishLog, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for _, c := range channels {
		item.Channels = append(item.Channels, models.Channel(c))
	}
	if len(overrides) > 0 {
		if err := json.Unmarshal(overrides, &item.Overrides); err != nil {
			return nil, err
		}
	}
	if len(publishLog) > 0 {
		if err := json.Unmarshal(publishLog, &item.PublishLog); err != nil {
			return nil, err
		}
	}
	return &item, nil
}

func (r *contentItemRepository) GetByID(ctx context.Context, id int64) (*models.ContentItem, error) {
	row := r.db.QueryRowContext(ctx, selectContentItem+` WHERE ci.id = $1`, id)

	item, err := scanContentItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return item, nil
}

func (r *contentItemRepository) ListByClientID(ctx context.Context, clientID int64) ([]*models.ContentItem, error) {
	rows, err := r.db.QueryContext(ctx, selectContentItem+` WHERE ci.client_id = $1 ORDER BY ci.id DESC`, clientID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var items []*models.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
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

func (r *contentItemRepository) exec(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) (sql.Result, error) {
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return r.db.ExecContext(ctx, query, args...)
}

// MarkScheduled never touches an item that is already published or whose
// dispatch is in flight within PublishingLease.
func (r *contentItemRepository) MarkScheduled(ctx context.Context, tx *sql.Tx, id int64, scheduledAt time.Time) error {
	query := `
		UPDATE content_items
		SET status = 'scheduled',
			scheduled_at = $2,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
			AND (status NOT IN ('published', 'publishing')
				OR (status = 'publishing' AND updated_at < $3))
	`
	result, err := r.exec(ctx, tx, query, id, scheduledAt, time.Now().Add(-PublishingLease))
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return requireOneRow(result)
}

func (r *contentItemRepository) MarkDraft(ctx context.Context, tx *sql.Tx, id int64) error {
	query := `
		UPDATE content_items
		SET status = 'draft',
			scheduled_at = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ('scheduled', 'failed')
	`
	result, err := r.exec(ctx, tx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return requireOneRow(result)
}

// MarkPublishing claims the item for one dispatch. It refuses items that are
// published or already claimed by a dispatch younger than PublishingLease.
// The boolean is false when nothing changed.
func (r *contentItemRepository) MarkPublishing(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE content_items
		SET status = 'publishing',
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
			AND (status NOT IN ('published', 'publishing')
				OR (status = 'publishing' AND updated_at < $2))
	`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().Add(-PublishingLease))
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}

func (r *contentItemRepository) UpdateStatus(ctx context.Context, id int64, status models.ContentStatus) error {
	query := `
		UPDATE content_items
		SET status = $1,
			updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *contentItemRepository) Finish(ctx context.Context, id int64, status models.ContentStatus, publishLog map[models.Channel]string) error {
	data, err := json.Marshal(nonNilLog(publishLog))
	if err != nil {
		return err
	}

	query := `
		UPDATE content_items
		SET status = $1,
			publish_log = $2,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $3
	`
	_, err = r.db.ExecContext(ctx, query, status, data, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// MergePublishLog overwrites one channel entry of the publish log. With
// promote set, a failed item becomes published.
func (r *contentItemRepository) MergePublishLog(ctx context.Context, id int64, channel models.Channel, message string, promote bool) error {
	query := `
		UPDATE content_items
		SET publish_log = COALESCE(publish_log, '{}'::jsonb) || jsonb_build_object($2::text, $3::text),
			status = CASE WHEN $4 AND status = 'failed' THEN 'published' ELSE status END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, string(channel), message, promote)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func nonNilLog(m map[models.Channel]string) map[models.Channel]string {
	if m == nil {
		return map[models.Channel]string{}
	}
	return m
}

func requireOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		return ErrStatusConflict
	}
	return nil
}
