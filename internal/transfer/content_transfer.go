package transfer

import (
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
)

// ContentCreation is the form payload of a new content item. List and map
// fields arrive JSON encoded, as multipart forms carry only strings.
type ContentCreation struct {
	Title     string
	Body      string
	Permalink string
	DueDate   string
	Labels    string
	Channels  string
	Overrides string
}

type StatusReport struct {
	ContentItemID   int64                       `json:"content_item_id"`
	PostStatus      models.ContentStatus        `json:"post_status"`
	ScheduledAt     *time.Time                  `json:"scheduled_at,omitempty"`
	PublishedStatus map[models.Channel]string   `json:"published_status"`
	Logs            []*models.ChannelAttemptLog `json:"logs"`
}
