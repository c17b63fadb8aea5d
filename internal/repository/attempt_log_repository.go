package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
)

type AttemptLogRepository interface {
	Create(ctx context.Context, l *models.ChannelAttemptLog) (int64, error)
	ListByContentItemID(ctx context.Context, contentItemID int64) ([]*models.ChannelAttemptLog, error)
	CountSuccesses(ctx context.Context, clientID int64, channel models.Channel, from, to time.Time) (int, error)
}

type attemptLogRepository struct {
	db *sql.DB
}

func NewAttemptLogRepository(db *sql.DB) AttemptLogRepository {
	return &attemptLogRepository{db: db}
}

func (r *attemptLogRepository) Create(ctx context.Context, l *models.ChannelAttemptLog) (int64, error) {
	query := `
		INSERT INTO channel_attempt_logs (content_item_id, channel, status, message, remote_id, response)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query, l.ContentItemID, l.Channel, l.Status, l.Message, l.RemoteID, l.Response).
		Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return l.ID, nil
}

func (r *attemptLogRepository) ListByContentItemID(ctx context.Context, contentItemID int64) ([]*models.ChannelAttemptLog, error) {
	query := `
		SELECT id, content_item_id, channel, status, message, remote_id, response, created_at
		FROM channel_attempt_logs
		WHERE content_item_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, contentItemID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	logs := []*models.ChannelAttemptLog{}
	for rows.Next() {
		var l models.ChannelAttemptLog
		err := rows.Scan(&l.ID, &l.ContentItemID, &l.Channel, &l.Status, &l.Message, &l.RemoteID, &l.Response, &l.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		logs = append(logs, &l)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return logs, nil
}

// CountSuccesses counts successful publishes of a client on a channel in
// [from, to).
func (r *attemptLogRepository) CountSuccesses(ctx context.Context, clientID int64, channel models.Channel, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM channel_attempt_logs l
		JOIN content_items ci ON ci.id = l.content_item_id
		WHERE ci.client_id = $1
			AND l.channel = $2
			AND l.status = 'success'
			AND l.created_at >= $3
			AND l.created_at < $4
	`

	var n int
	if err := r.db.QueryRowContext(ctx, query, clientID, channel, from, to).Scan(&n); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return n, nil
}
