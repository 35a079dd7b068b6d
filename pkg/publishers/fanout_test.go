package publishers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
)

type stubPublisher struct {
	mu     sync.Mutex
	id     string
	typ    string
	err    error
	calls  int
	last   Event
	closed bool
}

func (s *stubPublisher) ID() string   { return s.id }
func (s *stubPublisher) Type() string { return s.typ }
func (s *stubPublisher) Publish(_ context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = evt
	return s.err
}

func (s *stubPublisher) Close() error {
	s.closed = true
	return nil
}

func (s *stubPublisher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestFanoutPublishAggregatesErrors(t *testing.T) {
	fanout := NewFanout([]Publisher{
		&stubPublisher{id: "ok", typ: "http"},
		&stubPublisher{id: "bad", typ: "http", err: errors.New("failed")},
	})

	count, err := fanout.Publish(context.Background(), Event{})
	if count != 1 {
		t.Fatalf("expected 1 success, got %d", count)
	}
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
}

func TestFanoutSkipsNilAndCloses(t *testing.T) {
	p := &stubPublisher{id: "a", typ: "http"}
	fanout := NewFanout([]Publisher{nil, p})
	if fanout.Size() != 1 {
		t.Fatalf("expected nil publishers to be dropped, size=%d", fanout.Size())
	}
	if err := fanout.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !p.closed {
		t.Fatalf("expected publisher to be closed")
	}
}

func TestBuildAllWithDefaultRegistry(t *testing.T) {
	pubs, err := BuildAll(context.Background(), DefaultRegistry(), []SinkConfig{
		{ID: "http", Type: TypeHTTP, HTTP: &HTTPSink{URL: "https://example.com"}},
	}, nil)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(pubs) != 1 || pubs[0].Type() != TypeHTTP {
		t.Fatalf("unexpected publishers %#v", pubs)
	}
}

func TestBuildAllUnknownType(t *testing.T) {
	_, err := BuildAll(context.Background(), NewRegistry(), []SinkConfig{
		{ID: "x", Type: "smoke-signal"},
	}, nil)
	if err == nil {
		t.Fatalf("expected error for unregistered type")
	}
}

func TestBuildAllClosesBuiltPublishersOnFailure(t *testing.T) {
	first := &stubPublisher{id: "a", typ: "custom"}
	reg := NewRegistry()
	reg.Register("custom", Kind{Build: func(_ context.Context, cfg SinkConfig, _ logger.Logger) (Publisher, error) {
		if cfg.ID == "b" {
			return nil, errors.New("boom")
		}
		return first, nil
	}})

	_, err := BuildAll(context.Background(), reg, []SinkConfig{
		{ID: "a", Type: "custom"},
		{ID: "b", Type: "custom"},
	}, nil)
	if err == nil {
		t.Fatalf("expected build error")
	}
	if !first.closed {
		t.Fatalf("expected earlier publisher to be closed")
	}
}

func TestRegistryCustomKind(t *testing.T) {
	want := &stubPublisher{id: "custom", typ: "custom"}
	reg := NewRegistry()
	reg.Register("Custom", Kind{Build: func(context.Context, SinkConfig, logger.Logger) (Publisher, error) { return want, nil }})

	cfg := SinkConfig{ID: " c ", Type: "CUSTOM"}
	if err := reg.Validate(&cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.ID != "c" {
		t.Fatalf("expected trimmed id, got %q", cfg.ID)
	}
	got, err := reg.Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got != want {
		t.Fatalf("expected custom publisher")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
