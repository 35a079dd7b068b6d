package publishers

import (
	"net/url"
	"time"

	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
)

// EventTypeArticleIngested marks a newly stored article.
const EventTypeArticleIngested = "article.ingested"

// Event is the notification sent downstream for every stored article. It
// cites the article rather than carrying its content.
type Event struct {
	Type       string               `json:"type"`
	Article    domain.ArticleSource `json:"article"`
	Origin     domain.Origin        `json:"origin"`
	IngestedAt time.Time            `json:"ingested_at"`
}

// NewEvent builds the ingest event for article as delivered from origin.
func NewEvent(article domain.Article, origin domain.Origin, at time.Time) Event {
	return Event{
		Type:       EventTypeArticleIngested,
		Article:    article.Source(),
		Origin:     origin,
		IngestedAt: at.UTC(),
	}
}

// Host is the article's site, used to group messages on FIFO sinks.
func (e Event) Host() string {
	u, err := url.Parse(e.Article.URL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Attributes are the routing attributes attached to queue and topic messages
// so subscribers can filter without decoding the body. Empty values are left out.
func (e Event) Attributes() map[string]string {
	attrs := map[string]string{
		"event_type":    e.Type,
		"article_url":   e.Article.URL,
		"article_host":  e.Host(),
		"origin_source": e.Origin.Source,
	}
	for k, v := range attrs {
		if v == "" {
			delete(attrs, k)
		}
	}
	return attrs
}
