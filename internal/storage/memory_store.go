package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
)

// MemoryStore is a process-local Store for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	articles map[string]domain.Article
	order    []string
	closed   bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{articles: make(map[string]domain.Article)}
}

func (m *MemoryStore) FindByURL(_ context.Context, url string) (domain.Article, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return domain.Article{}, false, ErrClosed
	}
	a, ok := m.articles[url]
	return a, ok, nil
}

func (m *MemoryStore) Insert(_ context.Context, article domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.articles[article.URL]; ok {
		return ErrDuplicate
	}
	m.articles[article.URL] = article
	m.order = append(m.order, article.URL)
	return nil
}

// Search scores each article by case-insensitive term hits, weighting title hits higher.
func (m *MemoryStore) Search(_ context.Context, keywords string, limit int) ([]domain.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	terms := strings.Fields(strings.ToLower(keywords))
	type scored struct {
		article domain.Article
		score   int
	}
	var hits []scored
	for _, url := range m.order {
		a := m.articles[url]
		title, content := strings.ToLower(a.Title), strings.ToLower(a.Content)
		score := 0
		for _, term := range terms {
			if strings.Contains(title, term) {
				score += int(titleBoost)
			}
			if strings.Contains(content, term) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{article: a, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	limit = normalizeLimit(limit)
	out := make([]domain.Article, 0, limit)
	for i := 0; i < len(hits) && i < limit; i++ {
		out = append(out, hits[i].article)
	}
	return out, nil
}

// Len returns the number of stored articles.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.articles)
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
