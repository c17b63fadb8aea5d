package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
)

type ContentMediaRepository interface {
	Create(ctx context.Context, tx *sql.Tx, contentItemID int64, m *models.MediaRef) (int64, error)
	ListByContentItemID(ctx context.Context, contentItemID int64) ([]models.MediaRef, error)
}

type contentMediaRepository struct {
	db *sql.DB
}

func NewContentMediaRepository(db *sql.DB) ContentMediaRepository {
	return &contentMediaRepository{db: db}
}

func (r *contentMediaRepository) Create(ctx context.Context, tx *sql.Tx, contentItemID int64, m *models.MediaRef) (int64, error) {
	query := `
		INSERT INTO content_media (content_item_id, kind, url, storage_key, mime_type, display_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, contentItemID, m.Kind, m.URL, m.StorageKey, m.MimeType, m.DisplayOrder).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, contentItemID, m.Kind, m.URL, m.StorageKey, m.MimeType, m.DisplayOrder).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *contentMediaRepository) ListByContentItemID(ctx context.Context, contentItemID int64) ([]models.MediaRef, error) {
	query := `
		SELECT id, kind, url, storage_key, mime_type, display_order
		FROM content_media
		WHERE content_item_id = $1
		ORDER BY display_order, id
	`

	rows, err := r.db.QueryContext(ctx, query, contentItemID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var media []models.MediaRef
	for rows.Next() {
		var m models.MediaRef
		if err := rows.Scan(&m.ID, &m.Kind, &m.URL, &m.StorageKey, &m.MimeType, &m.DisplayOrder); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		media = append(media, m)
	}

	if err = rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return media, nil
}
