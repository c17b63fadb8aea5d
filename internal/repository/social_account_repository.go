package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
)

type SocialAccountRepository interface {
	Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error)
	GetByClientPlatform(ctx context.Context, clientID int64, platform string) (*models.SocialAccount, error)
	ListByClientID(ctx context.Context, clientID int64) ([]*models.SocialAccount, error)
	ListExpiring(ctx context.Context, from, to time.Time) ([]*models.SocialAccount, error)
	SetToken(ctx context.Context, id int64, oldAccessToken string, sa *models.SocialAccount) error
}

type socialAccountRepository struct {
	db *sql.DB
}

func NewSocialAccountRepository(db *sql.DB) SocialAccountRepository {
	return &socialAccountRepository{db: db}
}

const socialAccountColumns = `id, client_id, platform, account_id, account_name, account_username,
	access_token, refresh_token, token_expires_at, extra, created_at, updated_at`

func scanSocialAccount(row rowScanner) (*models.SocialAccount, error) {
	var sa models.SocialAccount
	var expires sql.NullTime
	var extra []byte
	err := row.Scan(&sa.ID, &sa.ClientID, &sa.Platform, &sa.AccountID, &sa.AccountName, &sa.AccountUsername,
		&sa.AccessToken, &sa.RefreshToken, &expires, &extra, &sa.CreatedAt, &sa.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		sa.TokenExpiresAt = expires.Time
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &sa.Extra); err != nil {
			return nil, err
		}
	}
	return &sa, nil
}

// Upsert stores the credentials of a client on one platform. Tokens are
// expected to be encrypted already.
func (r *socialAccountRepository) Upsert(ctx context.Context, sa *models.SocialAccount) (int64, error) {
	extra := sa.Extra
	if extra == nil {
		extra = map[string]string{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return 0, err
	}

	var expires sql.NullTime
	if !sa.TokenExpiresAt.IsZero() {
		expires = sql.NullTime{Time: sa.TokenExpiresAt, Valid: true}
	}

	query := `
		INSERT INTO social_accounts(
			client_id,
			platform,
			account_id,
			account_name,
			account_username,
			access_token,
			refresh_token,
			token_expires_at,
			extra
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (client_id, platform) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			account_name = EXCLUDED.account_name,
			account_username = EXCLUDED.account_username,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			extra = EXCLUDED.extra,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		sa.ClientID,
		sa.Platform,
		sa.AccountID,
		sa.AccountName,
		sa.AccountUsername,
		sa.AccessToken,
		sa.RefreshToken,
		expires,
		extraJSON,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *socialAccountRepository) GetByClientPlatform(ctx context.Context, clientID int64, platform string) (*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts WHERE client_id = $1 AND platform = $2`

	sa, err := scanSocialAccount(r.db.QueryRowContext(ctx, query, clientID, platform))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return sa, nil
}

func (r *socialAccountRepository) ListByClientID(ctx context.Context, clientID int64) ([]*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + ` FROM social_accounts WHERE client_id = $1 ORDER BY platform`
	return r.list(ctx, query, clientID)
}

// ListExpiring returns accounts whose token expires in [from, to] or has
// already expired.
func (r *socialAccountRepository) ListExpiring(ctx context.Context, from, to time.Time) ([]*models.SocialAccount, error) {
	query := `SELECT ` + socialAccountColumns + `
		FROM social_accounts
		WHERE refresh_token <> ''
			AND ((token_expires_at BETWEEN $1 AND $2) OR (token_expires_at < $1))`
	return r.list(ctx, query, from, to)
}

func (r *socialAccountRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.SocialAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.SocialAccount
	for rows.Next() {
		sa, err := scanSocialAccount(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, sa)
	}

	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return accounts, nil
}

// SetToken swaps in refreshed tokens, guarded by the token being replaced so
// two concurrent refreshes cannot clobber each other.
func (r *socialAccountRepository) SetToken(ctx context.Context, id int64, oldAccessToken string, sa *models.SocialAccount) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	updateTokenQuery := `
		UPDATE social_accounts
		SET
			access_token = COALESCE(NULLIF($3, ''), access_token),
			refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
			token_expires_at = COALESCE($5, token_expires_at),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND access_token = $2;
	`
	var expires sql.NullTime
	if !sa.TokenExpiresAt.IsZero() {
		expires = sql.NullTime{Time: sa.TokenExpiresAt, Valid: true}
	}
	result, err := tx.ExecContext(ctx, updateTokenQuery, id, oldAccessToken, sa.AccessToken, sa.RefreshToken, expires)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("no rows affected; account may have been refreshed already")
		return errors.New("no rows affected; account may have been refreshed already")
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
