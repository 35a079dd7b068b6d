package publishers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
)

// Publisher delivers ingest events to one downstream sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// Builder creates a Publisher from a validated sink config.
type Builder func(ctx context.Context, cfg SinkConfig, log logger.Logger) (Publisher, error)

// Kind describes a sink type: where its settings live in SinkConfig and how
// to build a publisher from them.
type Kind struct {
	Settings func(cfg *SinkConfig) Settings
	Build    Builder
}

// Registry maps sink types to their kinds.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Kind)}
}

// DefaultRegistry knows the http, sqs, sns and pubsub sinks.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeHTTP, Kind{Settings: httpSettings, Build: newHTTPPublisher})
	r.Register(TypeSQS, Kind{Settings: sqsSettings, Build: newSQSPublisher})
	r.Register(TypeSNS, Kind{Settings: snsSettings, Build: newSNSPublisher})
	r.Register(TypePubSub, Kind{Settings: pubsubSettings, Build: newPubSubPublisher})
	return r
}

// Register associates a kind with a sink type. Types are case-insensitive.
func (r *Registry) Register(typ string, kind Kind) {
	if typ = strings.TrimSpace(strings.ToLower(typ)); typ == "" || kind.Build == nil {
		return
	}
	r.mu.Lock()
	r.kinds[typ] = kind
	r.mu.Unlock()
}

func (r *Registry) kind(typ string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[typ]
	return k, ok
}

// Validate normalizes cfg in place and checks it against its sink type.
func (r *Registry) Validate(cfg *SinkConfig) error {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	if cfg.Type == "" {
		return fmt.Errorf("type is required for publisher %q", cfg.ID)
	}

	kind, ok := r.kind(cfg.Type)
	if !ok {
		return fmt.Errorf("unsupported type %q for publisher %q", cfg.Type, cfg.ID)
	}
	if kind.Settings == nil {
		return nil
	}
	settings := kind.Settings(cfg)
	if settings == nil {
		return fmt.Errorf("%s block required for publisher %q", cfg.Type, cfg.ID)
	}
	settings.normalize()
	if err := settings.validate(); err != nil {
		return fmt.Errorf("publisher %q: %w", cfg.ID, err)
	}
	return nil
}

// Build validates cfg and returns the publisher for it.
func (r *Registry) Build(ctx context.Context, cfg SinkConfig, log logger.Logger) (Publisher, error) {
	if err := r.Validate(&cfg); err != nil {
		return nil, err
	}
	kind, _ := r.kind(cfg.Type)
	return kind.Build(ctx, cfg, logger.Ensure(log))
}

// BuildAll builds a publisher per config. If any fails, the ones already
// built are closed.
func BuildAll(ctx context.Context, reg *Registry, cfgs []SinkConfig, log logger.Logger) ([]Publisher, error) {
	if reg == nil || len(cfgs) == 0 {
		return nil, nil
	}

	pubs := make([]Publisher, 0, len(cfgs))
	for _, cfg := range cfgs {
		pub, err := reg.Build(ctx, cfg, log)
		if err != nil {
			_ = NewFanout(pubs).Close()
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, nil
}
