package publishers

import (
	"time"

	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
)

func sampleEvent() Event {
	return NewEvent(domain.Article{
		Title:   "Monsoon arrives early",
		Content: "Heavy rain across the coast.",
		URL:     "https://news.example.com/monsoon",
		Date:    "2026-06-01T08:00:00Z",
	}, domain.Origin{Source: "kafka", Partition: "urls/0", MessageID: "urls/0/7"},
		time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
}
