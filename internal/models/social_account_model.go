package models

import (
	"time"
)

type Client struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SocialAccount holds one client's encrypted credentials for one platform.
type SocialAccount struct {
	ID              int64             `db:"id" json:"id"`
	ClientID        int64             `db:"client_id" json:"client_id"`
	Platform        string            `db:"platform" json:"platform"`
	AccountID       string            `db:"account_id" json:"account_id"`
	AccountName     string            `db:"account_name" json:"account_name"`
	AccountUsername string            `db:"account_username" json:"account_username"`
	AccessToken     string            `db:"access_token" json:"-"`
	RefreshToken    string            `db:"refresh_token" json:"-"`
	TokenExpiresAt  time.Time         `db:"token_expires_at" json:"token_expires_at"`
	Extra           map[string]string `db:"extra" json:"extra,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}
