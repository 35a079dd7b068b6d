package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingSink captures submitted messages and cancels once it has enough.
type recordingSink struct {
	mu     sync.Mutex
	msgs   []Message
	want   int
	cancel context.CancelFunc
}

func (r *recordingSink) Submit(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	if r.want > 0 && len(r.msgs) == r.want && r.cancel != nil {
		r.cancel()
	}
	return nil
}

func (r *recordingSink) all() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func TestDispatcherKeepsPartitionOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen = map[string][]string{}
		wg   sync.WaitGroup
	)
	handler := func(_ context.Context, msg Message) error {
		defer wg.Done()
		mu.Lock()
		seen[msg.Partition] = append(seen[msg.Partition], msg.ID)
		mu.Unlock()
		return nil
	}

	d := NewDispatcher(3, handler, nil)
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	partitions := []string{"topic/0", "topic/1", "topic/2", "topic/3"}
	var acked atomic.Int32
	for i := 0; i < 5; i++ {
		for _, p := range partitions {
			wg.Add(1)
			msg := NewMessage("test", p, fmt.Sprintf("%s-%d", p, i), nil,
				func(context.Context) error { acked.Add(1); return nil }, nil)
			if err := d.Submit(ctx, msg); err != nil {
				t.Fatalf("Submit: %v", err)
			}
		}
	}
	wg.Wait()
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, p := range partitions {
		got := seen[p]
		if len(got) != 5 {
			t.Fatalf("partition %s handled %d messages", p, len(got))
		}
		for i, id := range got {
			if want := fmt.Sprintf("%s-%d", p, i); id != want {
				t.Fatalf("partition %s out of order: %v", p, got)
			}
		}
	}
	waitFor(t, func() bool { return acked.Load() == 20 })
}

func TestDispatcherNacksOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	handler := func(context.Context, Message) error { return errors.New("store unavailable") }
	d := NewDispatcher(1, handler, nil)
	go func() { _ = d.Run(ctx) }()

	var acked bool
	msg := NewMessage("test", "p", "1", nil,
		func(context.Context) error { acked = true; return nil },
		func(context.Context) error { close(done); return nil },
	)
	if err := d.Submit(ctx, msg); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("nack not called")
	}
	if acked {
		t.Fatalf("message acked despite handler error")
	}
}

func TestDispatcherRunsLanesConcurrently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(4, nil, nil)
	var a, b string
	for i := 0; a == "" || b == ""; i++ {
		p := fmt.Sprintf("p-%d", i)
		switch {
		case a == "":
			a = p
		case d.laneFor(p) != d.laneFor(a):
			b = p
		}
	}

	release := make(chan struct{})
	handledB := make(chan struct{})
	handler := func(_ context.Context, msg Message) error {
		if msg.Partition == a {
			<-release
		} else {
			close(handledB)
		}
		return nil
	}
	for i := range d.handlers {
		d.handlers[i] = handler
	}
	go func() { _ = d.Run(ctx) }()

	_ = d.Submit(ctx, NewMessage("test", a, "a1", nil, nil, nil))
	_ = d.Submit(ctx, NewMessage("test", b, "b1", nil, nil, nil))
	select {
	case <-handledB:
	case <-time.After(2 * time.Second):
		t.Fatalf("lane for %s blocked by lane for %s", b, a)
	}
	close(release)
}

func TestLaneDispatcherUsesOwnHandlerPerLane(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		byLane = map[string]int{}
		wg    sync.WaitGroup
	)
	handlers := make([]Handler, 3)
	for lane := range handlers {
		lane := lane
		handlers[lane] = func(_ context.Context, msg Message) error {
			defer wg.Done()
			mu.Lock()
			byLane[msg.Partition] = lane
			mu.Unlock()
			return nil
		}
	}
	d := NewLaneDispatcher(handlers, nil)
	if d.Lanes() != 3 {
		t.Fatalf("Lanes = %d", d.Lanes())
	}
	go func() { _ = d.Run(ctx) }()

	partitions := []string{"urls/0", "urls/1", "urls/2", "urls/3", "urls/4"}
	wg.Add(len(partitions))
	for _, p := range partitions {
		if err := d.Submit(ctx, NewMessage("test", p, p, nil, nil, nil)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for _, p := range partitions {
		if got, want := byLane[p], d.laneFor(p); got != want {
			t.Fatalf("partition %s handled by lane %d, routed to lane %d", p, got, want)
		}
	}
}

func TestDispatcherSubmitAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(1, func(context.Context, Message) error { return nil }, nil)
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if err := d.Submit(context.Background(), NewMessage("test", "p", "1", nil, nil, nil)); !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("expected ErrDispatcherStopped, got %v", err)
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
	t.Fatalf("condition not met in time")
}
