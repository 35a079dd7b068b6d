package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
)

// settlingSink acks each message as it is submitted, like a lane finishing
// its work, and cancels once it has seen enough.
type settlingSink struct {
	mu     sync.Mutex
	msgs   []Message
	want   int
	cancel context.CancelFunc
}

func (s *settlingSink) Submit(ctx context.Context, msg Message) error {
	_ = msg.Ack(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	if len(s.msgs) == s.want {
		s.cancel()
	}
	return nil
}

func (s *settlingSink) all() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

// holdingSink accepts messages but never settles them, like a lane that is
// still busy when shutdown starts.
type holdingSink struct {
	got chan Message
}

func (h *holdingSink) Submit(_ context.Context, msg Message) error {
	h.got <- msg
	return nil
}

func newPubSubFixture(t *testing.T, payloads ...string) *PubSubSource {
	t.Helper()
	server := pstest.NewServer()
	t.Cleanup(func() { server.Close() })
	t.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	ctx := context.Background()
	admin, err := pubsub.NewClient(ctx, "test-project")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	t.Cleanup(func() { admin.Close() })

	topic, err := admin.CreateTopic(ctx, "urls")
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}
	if _, err := admin.CreateSubscription(ctx, "ingestor", pubsub.SubscriptionConfig{Topic: topic}); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	for _, payload := range payloads {
		if _, err := topic.Publish(ctx, &pubsub.Message{Data: []byte(payload)}).Get(ctx); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	topic.Stop()

	src, err := NewPubSubSource(ctx, PubSubConfig{ProjectID: "test-project", Subscription: "ingestor"}, nil)
	if err != nil {
		t.Fatalf("NewPubSubSource: %v", err)
	}
	t.Cleanup(func() { src.Close() })
	return src
}

// consumeWithin fails the test if Consume does not return in time.
func consumeWithin(t *testing.T, ctx context.Context, d time.Duration, src *PubSubSource, sink Sink) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- src.Consume(ctx, sink) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Consume: %v", err)
		}
	case <-time.After(d):
		t.Fatalf("Consume did not return after cancel")
	}
}

func TestPubSubSourceReceivesAndAcks(t *testing.T) {
	payload := `{"value":{"url":"https://example.com/a"}}`
	src := newPubSubFixture(t, payload)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sink := &settlingSink{want: 1, cancel: cancel}
	consumeWithin(t, ctx, 15*time.Second, src, sink)

	msgs := sink.all()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if string(msgs[0].Payload) != payload || msgs[0].Partition != msgs[0].ID {
		t.Fatalf("unexpected message %#v", msgs[0])
	}
}

func TestPubSubSourceReturnsWithUnsettledMessage(t *testing.T) {
	src := newPubSubFixture(t, `{"value":{"url":"https://example.com/b"}}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &holdingSink{got: make(chan Message, 1)}

	done := make(chan error, 1)
	go func() { done <- src.Consume(ctx, sink) }()

	var held Message
	select {
	case held = <-sink.got:
	case <-time.After(10 * time.Second):
		t.Fatalf("no message received")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Consume: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Consume blocked on an unsettled message")
	}

	// a late ack from the lane after shutdown is a no-op
	if err := held.Ack(context.Background()); err != nil {
		t.Fatalf("late Ack: %v", err)
	}
}

func TestPubSubSourceDefaultsMaxExtension(t *testing.T) {
	src := newPubSubFixture(t)
	if got := src.sub.ReceiveSettings.MaxExtension; got != defaultPubSubMaxExtension {
		t.Fatalf("MaxExtension = %v", got)
	}
}

func TestNewPubSubSourceValidates(t *testing.T) {
	if _, err := NewPubSubSource(context.Background(), PubSubConfig{ProjectID: "p"}, nil); err == nil {
		t.Fatalf("expected error without subscription")
	}
}
