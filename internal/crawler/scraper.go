package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
	"github.com/samvad-hq/samvad-news-ingestor/pkg/httpclient"
)

const (
	defaultMaxBodyBytes = 2 << 20 // 2 MiB
	errorSnippetBytes   = 1024
)

// ErrIncompleteExtraction marks a fetch that produced an empty title or content.
var ErrIncompleteExtraction = errors.New("incomplete extraction")

// FetchError describes a failed page fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Snippet    string
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d body: %s", e.URL, e.StatusCode, e.Snippet)
}

func (e *FetchError) Unwrap() error { return e.Err }

// noise is removed before the main content is read.
const noise = "script, style, nav, footer, header, .ads, #comments"

var mainSelectors = []string{
	"article",
	`[role="main"]`,
	".main-content",
	".article-content",
	".post-content",
	"#main-content",
}

var defaultHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0",
	"Accept":     "text/html",
}

// Option customises a Scraper.
type Option func(*Scraper)

// WithMaxBodyBytes caps how much of a page body is parsed.
func WithMaxBodyBytes(n int) Option {
	return func(s *Scraper) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Scraper) {
		if ua != "" {
			s.headers["User-Agent"] = ua
		}
	}
}

// WithClock overrides the fetch-time source used for the date fallback.
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) {
		if now != nil {
			s.now = now
		}
	}
}

// Scraper fetches article pages and extracts title, date and main text.
type Scraper struct {
	client  httpclient.Client
	log     logger.Logger
	headers map[string]string
	maxBody int
	now     func() time.Time
}

// NewScraper constructs a scraper with the provided HTTP client (or default).
func NewScraper(client httpclient.Client, log logger.Logger, opts ...Option) *Scraper {
	if client == nil {
		client = httpclient.NewRestyClient(httpclient.Options{Timeout: 15 * time.Second})
	}
	headers := make(map[string]string, len(defaultHeaders))
	for k, v := range defaultHeaders {
		headers[k] = v
	}
	s := &Scraper{
		client:  client,
		log:     logger.Ensure(log),
		headers: headers,
		maxBody: defaultMaxBodyBytes,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract fetches url and returns its extracted content. Empty title or
// content is returned as-is; callers decide whether that is acceptable.
func (s *Scraper) Extract(ctx context.Context, url string) (domain.ExtractedContent, error) {
	resp, err := s.client.Get(ctx, url, s.headers)
	if err != nil {
		return domain.ExtractedContent{}, &FetchError{URL: url, Err: err}
	}

	if resp.StatusCode() != 200 {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > errorSnippetBytes {
			snippet = snippet[:errorSnippetBytes]
		}
		return domain.ExtractedContent{}, &FetchError{URL: url, StatusCode: resp.StatusCode(), Snippet: snippet}
	}

	body := resp.Body()
	if len(body) > s.maxBody {
		s.log.DebugObj("page body truncated", "fetch", map[string]any{
			"url":   url,
			"bytes": len(body),
			"limit": s.maxBody,
		})
		body = body[:s.maxBody]
	}

	page, err := parsePage(body, s.now())
	if err != nil {
		return domain.ExtractedContent{}, err
	}
	page.URL = url
	return page, nil
}

func parsePage(body []byte, fetchedAt time.Time) (domain.ExtractedContent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.ExtractedContent{}, fmt.Errorf("parse html: %w", err)
	}

	extract := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	out := domain.ExtractedContent{}
	out.Title = collapseSpace(firstNonEmpty(
		extract(`meta[property="og:title"]`),
		doc.Find("title").First().Text(),
		doc.Find("h1").First().Text(),
	))
	out.Date = normalizeDate(extract(`meta[property="article:published_time"]`), fetchedAt)
	out.Content = mainContent(doc)
	return out, nil
}

func mainContent(doc *goquery.Document) string {
	doc.Find(noise).Remove()

	for _, sel := range mainSelectors {
		if text := collapseSpace(doc.Find(sel).Text()); text != "" {
			return text
		}
	}
	return collapseSpace(doc.Find("body").Text())
}

var dateLayouts = []string{
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
}

// normalizeDate keeps RFC3339 values verbatim, converts other common layouts
// and falls back to the fetch time.
func normalizeDate(raw string, fetchedAt time.Time) string {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if _, err := time.Parse(time.RFC3339, raw); err == nil {
			return raw
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC().Format(time.RFC3339)
			}
		}
	}
	return fetchedAt.UTC().Format(time.RFC3339)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
