package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
)

type FrequencyTargetRepository interface {
	Upsert(ctx context.Context, t *models.FrequencyTarget) (int64, error)
	List(ctx context.Context) ([]*models.FrequencyTarget, error)
	ListByClientID(ctx context.Context, clientID int64) ([]*models.FrequencyTarget, error)
}

type frequencyTargetRepository struct {
	db *sql.DB
}

func NewFrequencyTargetRepository(db *sql.DB) FrequencyTargetRepository {
	return &frequencyTargetRepository{db: db}
}

func (r *frequencyTargetRepository) Upsert(ctx context.Context, t *models.FrequencyTarget) (int64, error) {
	query := `
		INSERT INTO frequency_targets (client_id, channel, period, target_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id, channel, period) DO UPDATE SET
			target_count = EXCLUDED.target_count,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, t.ClientID, t.Channel, t.Period, t.TargetCount).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

const selectFrequencyTarget = `
	SELECT ft.id, ft.client_id, c.name, ft.channel, ft.period, ft.target_count, ft.created_at, ft.updated_at
	FROM frequency_targets ft
	JOIN clients c ON c.id = ft.client_id
`

func (r *frequencyTargetRepository) List(ctx context.Context) ([]*models.FrequencyTarget, error) {
	return r.list(ctx, selectFrequencyTarget+` ORDER BY ft.client_id, ft.channel`)
}

func (r *frequencyTargetRepository) ListByClientID(ctx context.Context, clientID int64) ([]*models.FrequencyTarget, error) {
	return r.list(ctx, selectFrequencyTarget+` WHERE ft.client_id = $1 ORDER BY ft.channel`, clientID)
}

func (r *frequencyTargetRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.FrequencyTarget, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var targets []*models.FrequencyTarget
	for rows.Next() {
		var t models.FrequencyTarget
		err := rows.Scan(&t.ID, &t.ClientID, &t.ClientName, &t.Channel, &t.Period, &t.TargetCount, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		targets = append(targets, &t)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return targets, nil
}
