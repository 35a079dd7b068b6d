// Package storage provides the durable article store and its keyword search.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
)

var (
	// ErrDuplicate is returned by Insert when an article with the same URL already exists.
	ErrDuplicate = errors.New("article already exists")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)

// Store persists articles keyed by URL.
type Store interface {
	// FindByURL reports whether an article with the URL exists. A missing
	// article is (zero, false, nil), never an error.
	FindByURL(ctx context.Context, url string) (domain.Article, bool, error)
	// Insert writes a new article. It never overwrites; a second write for the
	// same URL fails with ErrDuplicate.
	Insert(ctx context.Context, article domain.Article) error
	// Search returns up to limit articles matching the keywords, best first.
	Search(ctx context.Context, keywords string, limit int) ([]domain.Article, error)
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Type        string
	BoltPath    string
	IndexPath   string
	PostgresDSN string
	Logger      logger.Logger
}

const defaultSearchLimit = 5

// NewStore creates the configured storage backend.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	typ := strings.TrimSpace(strings.ToLower(opts.Type))
	log := logger.Ensure(opts.Logger)

	switch typ {
	case "memory":
		return NewMemoryStore(), nil
	case "", "bbolt":
		if strings.TrimSpace(opts.BoltPath) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(opts.BoltPath, opts.IndexPath, log)
	case "postgres":
		if strings.TrimSpace(opts.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn")
		}
		return openPostgres(ctx, opts.PostgresDSN, log)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	return limit
}
