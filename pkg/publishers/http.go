package publishers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
	"github.com/samvad-hq/samvad-news-ingestor/pkg/httpclient"
)

const (
	httpDefaultMethod  = http.MethodPost
	httpDefaultTimeout = 5
)

// HTTPSink posts events as JSON to a webhook.
type HTTPSink struct {
	URL            string            `yaml:"url"`
	Method         string            `yaml:"method"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
}

func httpSettings(cfg *SinkConfig) Settings {
	if cfg.HTTP == nil {
		return nil
	}
	return cfg.HTTP
}

func (s *HTTPSink) normalize() {
	s.URL = strings.TrimSpace(s.URL)
	s.Method = strings.ToUpper(strings.TrimSpace(s.Method))
	if s.Method == "" {
		s.Method = httpDefaultMethod
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = httpDefaultTimeout
	}
	headers := make(map[string]string, len(s.Headers))
	for k, v := range s.Headers {
		if k, v = strings.TrimSpace(k), strings.TrimSpace(v); k != "" && v != "" {
			headers[k] = v
		}
	}
	s.Headers = headers
}

func (s *HTTPSink) validate() error {
	if s.URL == "" {
		return errors.New("http.url is required")
	}
	if s.Method != http.MethodPost && s.Method != http.MethodPut {
		return fmt.Errorf("http.method %q not supported (POST or PUT)", s.Method)
	}
	return nil
}

type httpPublisher struct {
	id     string
	sink   HTTPSink
	client *resty.Client
	log    logger.Logger
}

func newHTTPPublisher(_ context.Context, cfg SinkConfig, log logger.Logger) (Publisher, error) {
	return &httpPublisher{
		id:     cfg.ID,
		sink:   *cfg.HTTP,
		client: httpclient.NewRestyHTTPClient(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second),
		log:    logger.Ensure(log),
	}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return TypeHTTP }

// Publish sends the event body along with its routing attributes as X-Samvad-* headers.
func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	req := h.client.R().
		SetContext(ctx).
		SetHeaders(h.sink.Headers).
		SetHeader("Content-Type", "application/json").
		SetBody(evt)
	for k, v := range evt.Attributes() {
		req.SetHeader(attributeHeader(k), v)
	}

	resp, err := req.Execute(h.sink.Method, h.sink.URL)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("http response status %d: %s", resp.StatusCode(), readBodySnippet(resp.Body()))
	}
	h.log.DebugObj("http publisher delivered event", "publisher_http_delivery", map[string]any{
		"publisher_id": h.id,
		"status":       resp.StatusCode(),
		"url":          evt.Article.URL,
	})
	return nil
}

// attributeHeader turns article_url into X-Samvad-Article-Url.
func attributeHeader(attr string) string {
	parts := strings.Split(attr, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return "X-Samvad-" + strings.Join(parts, "-")
}

func readBodySnippet(body []byte) string {
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}
