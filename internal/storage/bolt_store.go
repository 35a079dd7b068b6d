package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
	bolt "go.etcd.io/bbolt"
)

const articleBucket = "articles"

// boltStore keeps articles in BoltDB, one JSON value per URL, with a bleve
// index alongside for keyword search.
type boltStore struct {
	db     *bolt.DB
	index  *keywordIndex
	log    logger.Logger
	closed atomic.Bool
}

// openBolt initializes a BoltDB-backed Store and brings its keyword index up to date.
func openBolt(path, indexPath string, log logger.Logger) (*boltStore, error) {
	for _, p := range []string{path, indexPath} {
		dir := filepath.Dir(p)
		if p != "" && dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage directory: %w", err)
			}
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(articleBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	idx, err := openKeywordIndex(indexPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	store := &boltStore{db: db, index: idx, log: logger.Ensure(log)}
	if err := store.reindexIfStale(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the index and the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	idxErr := b.index.close()
	if err := b.db.Close(); err != nil {
		return err
	}
	return idxErr
}

// FindByURL loads the article stored under url.
func (b *boltStore) FindByURL(ctx context.Context, url string) (domain.Article, bool, error) {
	if b.closed.Load() {
		return domain.Article{}, false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return domain.Article{}, false, err
	}

	var (
		article domain.Article
		found   bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(articleBucket))
		if bucket == nil {
			return fmt.Errorf("article bucket missing")
		}
		value := bucket.Get([]byte(url))
		if value == nil {
			return nil
		}
		found = true
		return json.Unmarshal(value, &article)
	})
	if err != nil {
		return domain.Article{}, false, fmt.Errorf("find article: %w", err)
	}
	return article, found, nil
}

// Insert checks and writes inside one transaction, so concurrent inserts of
// the same URL leave exactly one record.
func (b *boltStore) Insert(ctx context.Context, article domain.Article) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("encode article: %w", err)
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(articleBucket))
		if bucket == nil {
			return fmt.Errorf("article bucket missing")
		}
		key := []byte(article.URL)
		if bucket.Get(key) != nil {
			return ErrDuplicate
		}
		return bucket.Put(key, value)
	})
	if err != nil {
		if err == ErrDuplicate {
			return ErrDuplicate
		}
		return fmt.Errorf("insert article: %w", err)
	}

	// The record is durable at this point; a missed index entry is repaired on next open.
	if err := b.index.add(article); err != nil {
		b.log.WarnObj("keyword index update failed", "index_error", map[string]any{
			"url":   article.URL,
			"error": err.Error(),
		})
	}
	return nil
}

// Search resolves keyword hits from the index back to stored articles.
func (b *boltStore) Search(ctx context.Context, keywords string, limit int) ([]domain.Article, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	urls, err := b.index.search(keywords, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	if len(urls) == 0 {
		return []domain.Article{}, nil
	}

	out := make([]domain.Article, 0, len(urls))
	err = b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(articleBucket))
		if bucket == nil {
			return fmt.Errorf("article bucket missing")
		}
		for _, url := range urls {
			value := bucket.Get([]byte(url))
			if value == nil {
				continue
			}
			var a domain.Article
			if err := json.Unmarshal(value, &a); err != nil {
				return fmt.Errorf("decode %s: %w", url, err)
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hydrate search hits: %w", err)
	}
	return out, nil
}

// reindexIfStale rebuilds the keyword index when its size disagrees with the bucket.
func (b *boltStore) reindexIfStale() error {
	indexed, err := b.index.count()
	if err != nil {
		return fmt.Errorf("count index: %w", err)
	}

	var articles []domain.Article
	err = b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(articleBucket))
		if bucket == nil {
			return fmt.Errorf("article bucket missing")
		}
		if uint64(bucket.Stats().KeyN) == indexed {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var a domain.Article
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			articles = append(articles, a)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("scan articles: %w", err)
	}
	if len(articles) == 0 {
		return nil
	}

	b.log.InfoObj("rebuilding keyword index", "reindex", map[string]any{
		"indexed": indexed,
		"stored":  len(articles),
	})
	return b.index.addBatch(articles)
}
