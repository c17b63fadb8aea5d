package models

import "time"

const OperationPublishChannel = "publish_channel"

type RetryContext struct {
	ContentItemID int64             `json:"content_item_id"`
	Channel       Channel           `json:"channel"`
	ClientID      int64             `json:"client_id"`
	RetryCount    int               `json:"retry_count"`
	Extra         map[string]string `json:"extra,omitempty"`
}

type RetryItem struct {
	ID           string       `db:"id" json:"id"`
	Operation    string       `db:"operation" json:"operation"`
	Context      RetryContext `db:"context" json:"context"`
	ErrorCode    string       `db:"error_code" json:"error_code"`
	ErrorMessage string       `db:"error_message" json:"error_message"`
	Severity     string       `db:"severity" json:"severity"`
	RetryCount   int          `db:"retry_count" json:"retry_count"`
	Strategy     string       `db:"strategy" json:"strategy"`
	NextAttempt  time.Time    `db:"next_attempt" json:"next_attempt"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	LastAttempt  *time.Time   `db:"last_attempt" json:"last_attempt,omitempty"`
	ClaimedAt    *time.Time   `db:"claimed_at" json:"-"`
}
