package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
	"github.com/samvad-hq/samvad-news-ingestor/internal/storage"
	"github.com/tmc/langchaingo/llms"
)

// scriptedModel replies to prompts in order.
type scriptedModel struct {
	replies []string
	err     error
	prompts []string
}

func (m *scriptedModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range messages {
		for _, p := range msg.Parts {
			if tp, ok := p.(llms.TextContent); ok {
				m.prompts = append(m.prompts, tp.Text)
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func seededStore(t *testing.T) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	for _, a := range []domain.Article{
		{Title: "Monsoon reaches Kerala", Content: "Heavy rain expected", URL: "https://example.com/monsoon", Date: "2024-06-01T00:00:00Z"},
		{Title: "Markets rally", Content: "Sensex up", URL: "https://example.com/markets", Date: "2024-06-02T00:00:00Z"},
	} {
		if err := store.Insert(context.Background(), a); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	return store
}

func TestAnswerUsesTopicSearchAndSources(t *testing.T) {
	model := &scriptedModel{replies: []string{
		" monsoon \n",
		"```json\n{\"answer\": \"The monsoon reached Kerala.\"}\n```",
	}}
	svc := NewService(model, seededStore(t), 5, nil)

	got, err := svc.Answer(context.Background(), "When did the monsoon arrive?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got.Answer != "The monsoon reached Kerala." {
		t.Fatalf("answer = %q", got.Answer)
	}
	want := domain.ArticleSource{Title: "Monsoon reaches Kerala", URL: "https://example.com/monsoon", Date: "2024-06-01T00:00:00Z"}
	if len(got.Sources) != 1 || got.Sources[0] != want {
		t.Fatalf("sources = %#v", got.Sources)
	}
	if len(model.prompts) != 2 || !strings.Contains(model.prompts[1], "Title: Monsoon reaches Kerala") || !strings.Contains(model.prompts[1], "Query: When did the monsoon arrive?") {
		t.Fatalf("unexpected prompts %q", model.prompts)
	}
}

func TestAnswerErrors(t *testing.T) {
	store := seededStore(t)

	if _, err := NewService(&scriptedModel{}, store, 5, nil).Answer(context.Background(), "  "); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if _, err := NewService(nil, store, 5, nil).Answer(context.Background(), "q"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := NewService(&scriptedModel{err: errors.New("quota")}, store, 5, nil).Answer(context.Background(), "q"); err == nil {
		t.Fatalf("expected model error")
	}
	noJSON := &scriptedModel{replies: []string{"monsoon", "I don't know"}}
	if _, err := NewService(noJSON, store, 5, nil).Answer(context.Background(), "q"); !errors.Is(err, ErrNoAnswer) {
		t.Fatalf("expected ErrNoAnswer, got %v", err)
	}
}
