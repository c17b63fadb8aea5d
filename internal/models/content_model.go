package models

import (
	"fmt"
	"time"
)

type Channel string

const (
	ChannelFacebook       Channel = "facebook"
	ChannelInstagram      Channel = "instagram"
	ChannelYoutube        Channel = "youtube"
	ChannelTiktok         Channel = "tiktok"
	ChannelBlog           Channel = "blog"
	ChannelFacebookStory  Channel = "facebook_story"
	ChannelInstagramStory Channel = "instagram_story"
)

var AllChannels = []Channel{
	ChannelFacebook,
	ChannelInstagram,
	ChannelYoutube,
	ChannelTiktok,
	ChannelBlog,
	ChannelFacebookStory,
	ChannelInstagramStory,
}

func ParseChannel(s string) (Channel, error) {
	for _, c := range AllChannels {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// Platform is the network a channel publishes to. Stories share the budget
// of their parent network.
func (c Channel) Platform() string {
	switch c {
	case ChannelFacebook, ChannelFacebookStory:
		return "facebook"
	case ChannelInstagram, ChannelInstagramStory:
		return "instagram"
	case ChannelYoutube:
		return "youtube"
	case ChannelTiktok:
		return "tiktok"
	case ChannelBlog:
		return "blog"
	default:
		return string(c)
	}
}

type ContentStatus string

const (
	StatusDraft      ContentStatus = "draft"
	StatusScheduled  ContentStatus = "scheduled"
	StatusPublishing ContentStatus = "publishing"
	StatusPublished  ContentStatus = "published"
	StatusFailed     ContentStatus = "failed"
)

func (s ContentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusScheduled, StatusPublishing, StatusPublished, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s ContentStatus) CanTransitionTo(next ContentStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusScheduled || next == StatusPublishing
	case StatusScheduled:
		return next == StatusScheduled || next == StatusPublishing || next == StatusDraft || next == StatusFailed
	case StatusPublishing:
		return next == StatusPublished || next == StatusFailed
	case StatusFailed:
		return next == StatusScheduled || next == StatusPublishing || next == StatusPublished || next == StatusDraft
	case StatusPublished:
		return false
	default:
		return false
	}
}

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

type MediaRef struct {
	ID           int64     `db:"id" json:"id"`
	Kind         MediaKind `db:"kind" json:"kind"`
	URL          string    `db:"url" json:"url"`
	StorageKey   string    `db:"storage_key" json:"storage_key"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	DisplayOrder int       `db:"display_order" json:"display_order"`
}

type ContentItem struct {
	ID          int64              `db:"id" json:"id"`
	ClientID    int64              `db:"client_id" json:"client_id"`
	ClientName  string             `db:"client_name" json:"client_name"`
	Title       string             `db:"title" json:"title"`
	Body        string             `db:"body" json:"body"`
	Permalink   string             `db:"permalink" json:"permalink"`
	DueDate     *time.Time         `db:"due_date" json:"due_date,omitempty"`
	Labels      []string           `db:"labels" json:"labels"`
	Channels    []Channel          `db:"channels" json:"channels"`
	Overrides   map[Channel]string `db:"overrides" json:"overrides,omitempty"`
	Media       []MediaRef         `json:"media"`
	ScheduledAt *time.Time         `db:"scheduled_at" json:"scheduled_at,omitempty"`
	Status      ContentStatus      `db:"status" json:"status"`
	PublishLog  map[Channel]string `db:"publish_log" json:"publish_log,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// FirstMedia returns the first attached media of the given kind.
func (c *ContentItem) FirstMedia(kind MediaKind) (MediaRef, bool) {
	for _, m := range c.Media {
		if m.Kind == kind {
			return m, true
		}
	}
	return MediaRef{}, false
}
