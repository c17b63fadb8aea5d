package models

import "time"

type PublishJob struct {
	ID            string    `db:"id" json:"id"`
	ContentItemID int64     `db:"content_item_id" json:"content_item_id"`
	FireAt        time.Time `db:"fire_at" json:"fire_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
