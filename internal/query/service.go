package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
	"github.com/samvad-hq/samvad-news-ingestor/pkg/llm"
	"github.com/tmc/langchaingo/llms"
)

var (
	// ErrEmptyQuery is returned for a blank question.
	ErrEmptyQuery = errors.New("query: empty question")
	// ErrUnavailable is returned when no language model is configured.
	ErrUnavailable = errors.New("query: language model not configured")
	// ErrNoAnswer is returned when the model reply carries no usable answer.
	ErrNoAnswer = errors.New("query: no answer in model response")
)

// Searcher finds stored articles by keywords.
type Searcher interface {
	Search(ctx context.Context, keywords string, limit int) ([]domain.Article, error)
}

const topicPrompt = `Extract the main topic or subject from this question for keyword-based article search. Just return the topic as plain text.

Question: %q`

const answerPrompt = `You are an AI news assistant with access to recent articles. Use ONLY the information from the provided context to answer the user's query. Do not answer using general knowledge or speculate.

Respond in this JSON format:
{
  "answer": "Your answer here"
}

Context:
%s

Query: %s`

// Service answers questions from stored articles.
type Service struct {
	model    llms.Model
	searcher Searcher
	limit    int
	log      logger.Logger
}

// NewService builds a query service. A nil model makes every Answer fail with ErrUnavailable.
func NewService(model llms.Model, searcher Searcher, limit int, log logger.Logger) *Service {
	if limit <= 0 {
		limit = 5
	}
	return &Service{model: model, searcher: searcher, limit: limit, log: logger.Ensure(log)}
}

// Answer extracts a topic, retrieves matching articles and asks the model to answer from them.
func (s *Service) Answer(ctx context.Context, question string) (domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Answer{}, ErrEmptyQuery
	}
	if s.model == nil {
		return domain.Answer{}, ErrUnavailable
	}

	topic, err := llms.GenerateFromSinglePrompt(ctx, s.model, fmt.Sprintf(topicPrompt, question), llms.WithTemperature(0))
	if err != nil {
		return domain.Answer{}, fmt.Errorf("extract topic: %w", err)
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = question
	}

	articles, err := s.searcher.Search(ctx, topic, s.limit)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("search articles: %w", err)
	}
	s.log.DebugObj("query context retrieved", "query", map[string]any{
		"topic":    topic,
		"articles": len(articles),
	})

	reply, err := llms.GenerateFromSinglePrompt(ctx, s.model, fmt.Sprintf(answerPrompt, buildContext(articles), question))
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	body, ok := llm.ExtractJSONObject(strings.TrimSpace(reply))
	if !ok {
		return domain.Answer{}, ErrNoAnswer
	}
	var parsed struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return domain.Answer{}, fmt.Errorf("decode answer: %w", err)
	}

	sources := make([]domain.ArticleSource, 0, len(articles))
	for _, a := range articles {
		sources = append(sources, a.Source())
	}
	return domain.Answer{Answer: parsed.Answer, Sources: sources}, nil
}

func buildContext(articles []domain.Article) string {
	var b strings.Builder
	for i, a := range articles {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "---\nTitle: %s\nDate: %s\nContent: %s\nURL: %s", a.Title, a.Date, a.Content, a.URL)
	}
	return b.String()
}
