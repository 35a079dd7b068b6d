package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samvad-hq/samvad-news-ingestor/internal/cleaner"
	"github.com/samvad-hq/samvad-news-ingestor/internal/consumer"
	"github.com/samvad-hq/samvad-news-ingestor/internal/crawler"
	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
	"github.com/samvad-hq/samvad-news-ingestor/internal/metrics"
	"github.com/samvad-hq/samvad-news-ingestor/internal/storage"
)

// Outcome is the terminal classification of one message.
type Outcome string

const (
	OutcomeStored           Outcome = "stored"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeInvalid          Outcome = "invalid"
	OutcomeExtractionFailed Outcome = "extraction_failed"
	OutcomeFailed           Outcome = "failed"
)

const (
	stageLookup = "lookup"
	stageFetch  = "fetch"
	stageClean  = "clean"
	stageInsert = "insert"
)

var (
	ErrStoreRequired   = errors.New("pipeline: store is required")
	ErrFetcherRequired = errors.New("pipeline: fetcher is required")
)

// Fetcher extracts content from a page.
type Fetcher interface {
	Extract(ctx context.Context, url string) (domain.ExtractedContent, error)
}

// Notifier is told about every newly stored article. It must not block.
type Notifier interface {
	Notify(ctx context.Context, article domain.Article, origin domain.Origin)
}

// Option customises a Processor.
type Option func(*Processor)

// WithRetryPolicy overrides the retry policy used for lookup, fetch and insert.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(pr *Processor) { pr.policy = p.normalize() }
}

// WithNotifier registers a notifier for stored articles.
func WithNotifier(n Notifier) Option {
	return func(pr *Processor) { pr.notifier = n }
}

// WithClock overrides the clock used for the ingestion-time date fallback.
func WithClock(now func() time.Time) Option {
	return func(pr *Processor) {
		if now != nil {
			pr.now = now
		}
	}
}

func withSleeper(s sleepFunc) Option {
	return func(pr *Processor) {
		if s != nil {
			pr.sleep = s
		}
	}
}

// Processor turns one raw stream payload into at most one stored article.
type Processor struct {
	store    storage.Store
	fetcher  Fetcher
	cleaner  cleaner.ContentCleaner
	notifier Notifier
	log      logger.Logger
	policy   RetryPolicy
	sleep    sleepFunc
	now      func() time.Time
}

// NewProcessor wires the pipeline collaborators. A nil cleaner passes content through.
func NewProcessor(store storage.Store, fetcher Fetcher, cl cleaner.ContentCleaner, log logger.Logger, opts ...Option) (*Processor, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if cl == nil {
		cl = cleaner.Passthrough{}
	}
	p := &Processor{
		store:   store,
		fetcher: fetcher,
		cleaner: cl,
		log:     logger.Ensure(log),
		policy:  DefaultRetryPolicy(),
		sleep:   sleepContext,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Handle adapts Process to the consumer handler contract: a nil error acks the message.
func (p *Processor) Handle(ctx context.Context, msg consumer.Message) error {
	origin := domain.Origin{Source: msg.Source, Partition: msg.Partition, MessageID: msg.ID}
	outcome, err := p.run(ctx, msg.Payload, origin)
	if err != nil {
		p.log.ErrorObj("message processing escalated", "pipeline_escalation", map[string]any{
			"source":    msg.Source,
			"partition": msg.Partition,
			"id":        msg.ID,
			"outcome":   outcome,
			"error":     err.Error(),
		})
	}
	return err
}

// Process runs decode, duplicate check, fetch, clean and insert for one payload.
// A non-nil error means the message should be redelivered; every other outcome is terminal.
func (p *Processor) Process(ctx context.Context, raw []byte) (Outcome, error) {
	return p.run(ctx, raw, domain.Origin{})
}

func (p *Processor) run(ctx context.Context, raw []byte, origin domain.Origin) (Outcome, error) {
	outcome, err := p.process(ctx, raw, origin)
	metrics.RecordOutcome(string(outcome))
	return outcome, err
}

func (p *Processor) process(ctx context.Context, raw []byte, origin domain.Origin) (Outcome, error) {
	target, err := decodeURL(raw)
	if err != nil {
		p.log.WarnObj("discarding invalid message", "invalid_message", map[string]any{
			"error":   err.Error(),
			"payload": truncate(string(raw), 256),
		})
		return OutcomeInvalid, nil
	}

	// duplicate check
	var found bool
	attempts, err := p.runStage(ctx, stageLookup, nil, func(int) error {
		var ferr error
		_, found, ferr = p.store.FindByURL(ctx, target)
		return ferr
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("lookup %s after %d attempts: %w", target, attempts, err)
	}
	if found {
		p.logOutcome(target, OutcomeDuplicate, map[string]any{"stage": stageLookup})
		return OutcomeDuplicate, nil
	}

	// fetch
	var extracted domain.ExtractedContent
	attempts, err = p.runStage(ctx, stageFetch, nil, func(int) error {
		content, ferr := p.fetcher.Extract(ctx, target)
		if ferr != nil {
			return ferr
		}
		if strings.TrimSpace(content.Title) == "" || strings.TrimSpace(content.Content) == "" {
			return crawler.ErrIncompleteExtraction
		}
		extracted = content
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeFailed, ctx.Err()
		}
		p.log.WarnObj("content extraction failed", "fetch_error", map[string]any{
			"url":      target,
			"attempts": attempts,
			"error":    err.Error(),
		})
		return OutcomeExtractionFailed, nil
	}

	// clean, single attempt, never fails
	start := time.Now()
	cleaned := p.cleaner.Clean(ctx, extracted)
	metrics.RecordStage(stageClean, time.Since(start).Seconds())

	article := p.buildArticle(target, cleaned, extracted)

	// persist
	attempts, err = p.runStage(ctx, stageInsert, isDuplicate, func(int) error {
		return p.store.Insert(ctx, article)
	})
	if errors.Is(err, storage.ErrDuplicate) {
		p.logOutcome(target, OutcomeDuplicate, map[string]any{"stage": stageInsert, "attempts": attempts})
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return OutcomeFailed, fmt.Errorf("insert %s after %d attempts: %w", target, attempts, err)
	}

	p.logOutcome(target, OutcomeStored, map[string]any{"title": article.Title, "date": article.Date})
	if p.notifier != nil {
		p.notifier.Notify(ctx, article, origin)
	}
	return OutcomeStored, nil
}

func (p *Processor) runStage(ctx context.Context, stage string, permanent func(error) bool, op func(int) error) (int, error) {
	start := time.Now()
	attempts, err := retry(ctx, p.policy, p.sleep, permanent, func(attempt int) error {
		err := op(attempt)
		metrics.RecordAttempt(stage, err)
		if err != nil && attempt < p.policy.Attempts && (permanent == nil || !permanent(err)) {
			p.log.DebugObj("stage attempt failed, retrying", "retry", map[string]any{
				"stage":   stage,
				"attempt": attempt,
				"delay":   p.policy.Delay(attempt).String(),
				"error":   err.Error(),
			})
		}
		return err
	})
	metrics.RecordStage(stage, time.Since(start).Seconds())
	return attempts, err
}

// buildArticle keys the record by the message URL. A missing or non ISO-8601
// date is replaced by the extracted one, then by the ingestion time.
func (p *Processor) buildArticle(target string, cleaned, extracted domain.ExtractedContent) domain.Article {
	title := collapseSpace(cleaned.Title)
	content := collapseSpace(cleaned.Content)
	if title == "" || content == "" {
		title = collapseSpace(extracted.Title)
		content = collapseSpace(extracted.Content)
	}
	date := strings.TrimSpace(cleaned.Date)
	if !isTimestamp(date) {
		date = strings.TrimSpace(extracted.Date)
	}
	if !isTimestamp(date) {
		date = p.now().UTC().Format(time.RFC3339)
	}
	return domain.Article{Title: title, Content: content, URL: target, Date: date}
}

func (p *Processor) logOutcome(url string, outcome Outcome, extra map[string]any) {
	fields := map[string]any{"url": url, "outcome": outcome}
	for k, v := range extra {
		fields[k] = v
	}
	p.log.InfoObj("message processed", "pipeline_outcome", fields)
}

// decodeURL extracts value.url from the payload and requires an absolute http(s) URL.
func decodeURL(raw []byte) (string, error) {
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}
	target := strings.TrimSpace(env.Value.URL)
	if target == "" {
		return "", errors.New("missing value.url")
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("not an absolute http(s) url: %q", target)
	}
	return target, nil
}

func isTimestamp(s string) bool {
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

func isDuplicate(err error) bool { return errors.Is(err, storage.ErrDuplicate) }

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
