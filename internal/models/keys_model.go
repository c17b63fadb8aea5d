package models

import "time"

// ApiKey is a long-lived client credential. Only its SHA-256 hash is stored.
type ApiKey struct {
	ID        int64     `db:"id" json:"id"`
	ClientID  int64     `db:"client_id" json:"client_id"`
	KeyHash   string    `db:"key_hash" json:"-"`
	Prefix    string    `db:"prefix" json:"prefix"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
