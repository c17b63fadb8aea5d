package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
)

type ClientRepository interface {
	Create(ctx context.Context, name string) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Client, error)
}

type clientRepository struct {
	db *sql.DB
}

func NewClientRepository(db *sql.DB) ClientRepository {
	return &clientRepository{db: db}
}

func (r *clientRepository) Create(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `INSERT INTO clients (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *clientRepository) GetByID(ctx context.Context, id int64) (*models.Client, error) {
	var c models.Client
	err := r.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return &c, nil
}
