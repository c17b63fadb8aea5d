package publish

import (
	"testing"
	"time"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestMessageFillsPlaceholders(t *testing.T) {
	due := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	item := &models.ContentItem{
		Title:      "Spring launch",
		Body:       "Our new range is out.",
		Permalink:  "https://acme.example/spring?ref=home",
		ClientName: "Acme",
		Labels:     []string{"launch", "spring"},
		DueDate:    &due,
	}
	r := Renderer{Template: "{client_name}: {title} ({due_date}) [{labels}]\n{permalink}", Campaign: "q2"}

	got := r.Message(item, models.ChannelFacebook)
	assert.Equal(t, "Acme: Spring launch (2025-04-01) [launch, spring]\nhttps://acme.example/spring?ref=home&utm_campaign=q2&utm_medium=social&utm_source=facebook", got)
}

func TestMessageOverrideWins(t *testing.T) {
	item := &models.ContentItem{
		Title:     "Spring launch",
		Overrides: map[models.Channel]string{models.ChannelTiktok: "{title} #fyp"},
	}
	r := Renderer{Template: "{title}\n\n{body}"}

	assert.Equal(t, "Spring launch #fyp", r.Message(item, models.ChannelTiktok))
	assert.Equal(t, "Spring launch", r.Message(item, models.ChannelFacebook))
}

func TestMessageCollapsesEmptySections(t *testing.T) {
	item := &models.ContentItem{Title: "Only a title"}
	r := Renderer{Template: "{title}\n\n{body}\n\n{permalink}"}
	assert.Equal(t, "Only a title", r.Message(item, models.ChannelBlog))

	item.Permalink = "https://acme.example/a"
	assert.Equal(t, "Only a title\n\nhttps://acme.example/a?utm_medium=social&utm_source=blog", r.Message(item, models.ChannelBlog))
}

func TestWithUTMLeavesOddLinksAlone(t *testing.T) {
	assert.Equal(t, "", WithUTM("", models.ChannelFacebook, "x"))
	assert.Equal(t, "not a link", WithUTM("not a link", models.ChannelFacebook, "x"))
	assert.Equal(t,
		"https://acme.example/p?utm_campaign=x&utm_medium=social&utm_source=instagram_story",
		WithUTM("https://acme.example/p?utm_source=old", models.ChannelInstagramStory, "x"))
}
