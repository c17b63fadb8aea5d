package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
)

type ApiKeyRepository interface {
	GetClientIDByHash(ctx context.Context, keyHash string) (int64, bool, error)
	ListByClientID(ctx context.Context, clientID int64) ([]*models.ApiKey, error)
	Create(ctx context.Context, apiKey *models.ApiKey) (int64, error)
	CheckByClientID(ctx context.Context, keyID, clientID int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type apiKeyRepository struct {
	db *sql.DB
}

func NewApiKeyRepository(db *sql.DB) ApiKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) GetClientIDByHash(ctx context.Context, keyHash string) (int64, bool, error) {
	var clientID int64
	query := "SELECT client_id FROM api_keys WHERE key_hash = $1"
	err := r.db.QueryRowContext(ctx, query, keyHash).Scan(&clientID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		slog.Info(err.Error())
		return 0, false, err
	}
	return clientID, true, nil
}

func (r *apiKeyRepository) ListByClientID(ctx context.Context, clientID int64) ([]*models.ApiKey, error) {
	query := `SELECT id, client_id, key_hash, prefix, created_at FROM api_keys WHERE client_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var apiKeys []*models.ApiKey
	for rows.Next() {
		var apiKey models.ApiKey
		err := rows.Scan(&apiKey.ID, &apiKey.ClientID, &apiKey.KeyHash, &apiKey.Prefix, &apiKey.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		apiKeys = append(apiKeys, &apiKey)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return apiKeys, nil
}

func (r *apiKeyRepository) Create(ctx context.Context, apiKey *models.ApiKey) (int64, error) {
	query := "INSERT INTO api_keys (client_id, key_hash, prefix) VALUES ($1, $2, $3) RETURNING id"
	var id int64
	err := r.db.QueryRowContext(ctx, query, apiKey.ClientID, apiKey.KeyHash, apiKey.Prefix).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *apiKeyRepository) CheckByClientID(ctx context.Context, keyID, clientID int64) (bool, error) {
	query := "SELECT 1 FROM api_keys WHERE id = $1 AND client_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, keyID, clientID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *apiKeyRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM api_keys WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
