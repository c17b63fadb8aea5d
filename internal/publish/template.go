package publish

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
)

var extraBlankLines = regexp.MustCompile(`\n{3,}`)

// Renderer turns a content item into the outgoing text for one channel.
type Renderer struct {
	Template string
	Campaign string
}

// Message returns the channel override when one is set, the template
// otherwise, with placeholders filled from the item.
func (r Renderer) Message(item *models.ContentItem, channel models.Channel) string {
	text := r.Template
	if override := strings.TrimSpace(item.Overrides[channel]); override != "" {
		text = override
	}

	dueDate := ""
	if item.DueDate != nil {
		dueDate = item.DueDate.Format("2006-01-02")
	}

	replacer := strings.NewReplacer(
		"{title}", item.Title,
		"{body}", item.Body,
		"{permalink}", r.Link(item, channel),
		"{due_date}", dueDate,
		"{labels}", strings.Join(item.Labels, ", "),
		"{client_name}", item.ClientName,
	)
	out := replacer.Replace(text)
	out = extraBlankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// Link is the item's permalink tagged with UTM parameters for channel.
func (r Renderer) Link(item *models.ContentItem, channel models.Channel) string {
	return WithUTM(item.Permalink, channel, r.Campaign)
}

// WithUTM adds utm_source, utm_medium and utm_campaign to link, keeping any
// query parameters it already has. Unparseable links are returned as is.
func WithUTM(link string, channel models.Channel, campaign string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return link
	}
	q := u.Query()
	q.Set("utm_source", string(channel))
	q.Set("utm_medium", "social")
	if campaign != "" {
		q.Set("utm_campaign", campaign)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
