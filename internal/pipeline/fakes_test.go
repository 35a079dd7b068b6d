package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-news-ingestor/internal/domain"
	"github.com/samvad-hq/samvad-news-ingestor/internal/storage"
	"github.com/tmc/langchaingo/llms"
)

// fakeStore wraps a MemoryStore and lets tests script failures per call.
type fakeStore struct {
	*storage.MemoryStore
	mu          sync.Mutex
	findErrs    []error
	insertErrs  []error
	findCalls   int
	insertCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: storage.NewMemoryStore()}
}

func (f *fakeStore) FindByURL(ctx context.Context, url string) (domain.Article, bool, error) {
	f.mu.Lock()
	f.findCalls++
	var err error
	if len(f.findErrs) > 0 {
		err, f.findErrs = f.findErrs[0], f.findErrs[1:]
	}
	f.mu.Unlock()
	if err != nil {
		return domain.Article{}, false, err
	}
	return f.MemoryStore.FindByURL(ctx, url)
}

func (f *fakeStore) Insert(ctx context.Context, a domain.Article) error {
	f.mu.Lock()
	f.insertCalls++
	var err error
	if len(f.insertErrs) > 0 {
		err, f.insertErrs = f.insertErrs[0], f.insertErrs[1:]
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryStore.Insert(ctx, a)
}

// fakeFetcher returns scripted results in order, repeating the last one.
type fakeFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
}

type fetchResult struct {
	content domain.ExtractedContent
	err     error
}

func (f *fakeFetcher) Extract(_ context.Context, url string) (domain.ExtractedContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	r := f.results[len(f.results)-1]
	if f.calls <= len(f.results) {
		r = f.results[f.calls-1]
	}
	if r.err == nil && r.content.URL == "" {
		r.content.URL = url
	}
	return r.content, r.err
}

// stubCleaner returns a fixed result, or its input when out is nil.
type stubCleaner struct {
	out   *domain.ExtractedContent
	calls int
}

func (s *stubCleaner) Clean(_ context.Context, raw domain.ExtractedContent) domain.ExtractedContent {
	s.calls++
	if s.out == nil {
		return raw
	}
	return *s.out
}

// recordingSleeper records requested delays without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

type recordingNotifier struct {
	mu       sync.Mutex
	articles []domain.Article
	origins  []domain.Origin
}

func (r *recordingNotifier) Notify(_ context.Context, a domain.Article, o domain.Origin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.articles = append(r.articles, a)
	r.origins = append(r.origins, o)
}

// replyModel answers every prompt with the same text.
type replyModel struct {
	reply string
}

func (m *replyModel) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *replyModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}
