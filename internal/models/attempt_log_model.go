package models

import "time"

type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "success"
	AttemptError   AttemptStatus = "error"
)

// ChannelAttemptLog is an append-only record of one publish attempt.
type ChannelAttemptLog struct {
	ID            int64         `db:"id" json:"id"`
	ContentItemID int64         `db:"content_item_id" json:"content_item_id"`
	Channel       Channel       `db:"channel" json:"channel"`
	Status        AttemptStatus `db:"status" json:"status"`
	Message       string        `db:"message" json:"message"`
	RemoteID      string        `db:"remote_id" json:"remote_id,omitempty"`
	Response      string        `db:"response" json:"response,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}
