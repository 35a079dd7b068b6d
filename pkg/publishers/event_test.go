package publishers

import (
	"reflect"
	"testing"

	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
)

func TestEventAttributes(t *testing.T) {
	got := sampleEvent().Attributes()
	want := map[string]string{
		"event_type":    EventTypeArticleIngested,
		"article_url":   "https://news.example.com/monsoon",
		"article_host":  "news.example.com",
		"origin_source": "kafka",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("attributes = %#v", got)
	}
}

func TestEventAttributesSkipEmptyValues(t *testing.T) {
	evt := NewEvent(domain.Article{URL: "::bad"}, domain.Origin{}, sampleEvent().IngestedAt)
	got := evt.Attributes()
	if _, ok := got["origin_source"]; ok {
		t.Fatalf("empty origin should be omitted: %#v", got)
	}
	if _, ok := got["article_host"]; ok {
		t.Fatalf("unparsable url should have no host: %#v", got)
	}
}

func TestFIFOIdentifiers(t *testing.T) {
	evt := sampleEvent()
	if !isFIFO("https://sqs.ap-south-1.amazonaws.com/1/ingested.fifo") || isFIFO("arn:aws:sns:ap-south-1:1:ingested") {
		t.Fatalf("isFIFO misclassified targets")
	}
	if groupID(evt) != "news.example.com" {
		t.Fatalf("groupID = %q", groupID(evt))
	}
	if a, b := dedupID(evt), dedupID(sampleEvent()); a != b || len(a) != 64 {
		t.Fatalf("dedupID not stable: %q %q", a, b)
	}
}
