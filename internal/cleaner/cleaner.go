package cleaner

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
	"github.com/samvad-hq/samvad-news-ingestor/pkg/llm"
	"github.com/tmc/langchaingo/llms"
)

// ContentCleaner normalises extracted content. Implementations never fail;
// on any problem they hand back the input.
type ContentCleaner interface {
	Clean(ctx context.Context, raw domain.ExtractedContent) domain.ExtractedContent
}

const promptTemplate = `Clean and structure this article. Return ONLY this format:
{
  "title": "cleaned title",
  "content": "cleaned content",
  "url": %q,
  "date": %q
}

Raw content:
Title: %s
Content: %s`

// Cleaner asks a language model to tidy an extracted article.
type Cleaner struct {
	model  llms.Model
	log    logger.Logger
	policy *bluemonday.Policy
}

// New returns a model-backed cleaner, or Passthrough when model is nil.
func New(model llms.Model, log logger.Logger) ContentCleaner {
	if model == nil {
		return Passthrough{}
	}
	return &Cleaner{
		model:  model,
		log:    logger.Ensure(log),
		policy: bluemonday.StrictPolicy(),
	}
}

// Clean returns the model's structured rewrite of raw, or raw itself when the
// model fails or answers with anything other than a complete record.
func (c *Cleaner) Clean(ctx context.Context, raw domain.ExtractedContent) domain.ExtractedContent {
	prompt := fmt.Sprintf(promptTemplate, raw.URL, raw.Date, raw.Title, raw.Content)

	text, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, llms.WithTemperature(0))
	if err != nil {
		c.fallback(raw.URL, "generate", err)
		return raw
	}

	body, ok := llm.ExtractJSONObject(strings.TrimSpace(text))
	if !ok {
		c.fallback(raw.URL, "no json object in response", nil)
		return raw
	}

	var cleaned domain.ExtractedContent
	if err := json.Unmarshal([]byte(body), &cleaned); err != nil {
		c.fallback(raw.URL, "decode", err)
		return raw
	}
	if blank(cleaned.Title) || blank(cleaned.Content) || blank(cleaned.URL) || blank(cleaned.Date) {
		c.fallback(raw.URL, "incomplete record", nil)
		return raw
	}

	cleaned.Title = c.sanitize(cleaned.Title)
	cleaned.Content = c.sanitize(cleaned.Content)
	if cleaned.Title == "" || cleaned.Content == "" {
		c.fallback(raw.URL, "empty after sanitizing", nil)
		return raw
	}
	cleaned.URL = strings.TrimSpace(cleaned.URL)
	cleaned.Date = strings.TrimSpace(cleaned.Date)
	if !isTimestamp(cleaned.Date) {
		c.log.WarnObj("cleaner returned a non ISO-8601 date, keeping extracted date", "cleaner", map[string]any{
			"url":  raw.URL,
			"date": cleaned.Date,
		})
		cleaned.Date = raw.Date
	}
	return cleaned
}

func (c *Cleaner) sanitize(s string) string {
	s = html.UnescapeString(c.policy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

func (c *Cleaner) fallback(url, reason string, err error) {
	fields := map[string]any{"url": url, "reason": reason}
	if err != nil {
		fields["error"] = err.Error()
	}
	c.log.WarnObj("cleaner fell back to raw content", "cleaner", fields)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func isTimestamp(s string) bool {
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

// Passthrough returns its input unchanged.
type Passthrough struct{}

func (Passthrough) Clean(_ context.Context, raw domain.ExtractedContent) domain.ExtractedContent {
	return raw
}
