package cleaner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel answers every prompt with a canned response.
type fakeModel struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, m := range messages {
		for _, p := range m.Parts {
			if tp, ok := p.(llms.TextContent); ok {
				f.prompts = append(f.prompts, tp.Text)
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

var raw = domain.ExtractedContent{
	Title:   "Raw Title",
	Content: "Raw content body",
	URL:     "https://example.com/a",
	Date:    "2024-01-01T00:00:00Z",
}

func TestCleanReturnsModelRecord(t *testing.T) {
	model := &fakeModel{reply: "Sure!\n```json\n{\"title\":\"Clean <b>Title</b>\",\"content\":\"Clean   body &amp; more\",\"url\":\"https://example.com/a\",\"date\":\"2024-01-01T00:00:00Z\"}\n```"}

	got := New(model, nil).Clean(context.Background(), raw)

	if got.Title != "Clean Title" {
		t.Fatalf("title = %q", got.Title)
	}
	if got.Content != "Clean body & more" {
		t.Fatalf("content = %q", got.Content)
	}
	if got.URL != raw.URL || got.Date != raw.Date {
		t.Fatalf("unexpected url/date %#v", got)
	}
	if len(model.prompts) != 1 || !strings.Contains(model.prompts[0], `"url": "https://example.com/a"`) || !strings.Contains(model.prompts[0], "Content: Raw content body") {
		t.Fatalf("unexpected prompt %q", model.prompts)
	}
}

func TestCleanFallsBackToRaw(t *testing.T) {
	cases := map[string]*fakeModel{
		"model error":   {err: errors.New("quota exceeded")},
		"no braces":     {reply: "I cannot help with that"},
		"invalid json":  {reply: `{"title": "x", content}`},
		"missing field": {reply: `{"title":"t","content":"c","url":"u"}`},
		"blank field":   {reply: `{"title":"  ","content":"c","url":"u","date":"d"}`},
		"wrong type":    {reply: `{"title":1,"content":"c","url":"u","date":"d"}`},
		"markup only":   {reply: `{"title":"<img src=x>","content":"c","url":"u","date":"d"}`},
		"empty reply":   {reply: ""},
	}
	for name, model := range cases {
		t.Run(name, func(t *testing.T) {
			got := New(model, nil).Clean(context.Background(), raw)
			if got != raw {
				t.Fatalf("expected raw back, got %#v", got)
			}
		})
	}
}

func TestCleanKeepsExtractedDateWhenModelDateIsNotISO(t *testing.T) {
	cases := map[string]string{
		"prose date":   "January 1st, 2024",
		"date only":    "2024-01-05",
		"rfc1123 date": "Fri, 05 Jan 2024 10:00:00 GMT",
	}
	for name, date := range cases {
		t.Run(name, func(t *testing.T) {
			model := &fakeModel{reply: `{"title":"Clean Title","content":"Clean body","url":"https://example.com/a","date":"` + date + `"}`}

			got := New(model, nil).Clean(context.Background(), raw)

			if got.Date != raw.Date {
				t.Fatalf("date = %q, want %q", got.Date, raw.Date)
			}
			if got.Title != "Clean Title" || got.Content != "Clean body" {
				t.Fatalf("cleaned fields lost: %#v", got)
			}
		})
	}
}

func TestCleanAcceptsOffsetTimestamp(t *testing.T) {
	model := &fakeModel{reply: `{"title":"T","content":"C","url":"https://example.com/a","date":"2024-01-05T10:00:00+05:30"}`}

	got := New(model, nil).Clean(context.Background(), raw)
	if got.Date != "2024-01-05T10:00:00+05:30" {
		t.Fatalf("date = %q", got.Date)
	}
}

func TestNewWithoutModelIsPassthrough(t *testing.T) {
	c := New(nil, nil)
	if _, ok := c.(Passthrough); !ok {
		t.Fatalf("expected Passthrough, got %T", c)
	}
	if got := c.Clean(context.Background(), raw); got != raw {
		t.Fatalf("passthrough changed content: %#v", got)
	}
}
