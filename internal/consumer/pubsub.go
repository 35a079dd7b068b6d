package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
	"google.golang.org/api/option"
)

// PubSubConfig configures the GCP Pub/Sub subscription source.
type PubSubConfig struct {
	ProjectID       string
	Subscription    string
	CredentialsFile string
	Endpoint        string
	// MaxExtension bounds how long a lease is extended while a message waits for its lane.
	MaxExtension time.Duration
}

const defaultPubSubMaxExtension = 10 * time.Minute

// PubSubSource receives from a subscription. Ordering keys map to partitions.
type PubSubSource struct {
	client *pubsub.Client
	sub    *pubsub.Subscription
	log    logger.Logger
}

// NewPubSubSource creates the Pub/Sub client. PUBSUB_EMULATOR_HOST is honoured by the client library.
func NewPubSubSource(ctx context.Context, cfg PubSubConfig, log logger.Logger) (*PubSubSource, error) {
	if cfg.ProjectID == "" || cfg.Subscription == "" {
		return nil, fmt.Errorf("pubsub source requires project id and subscription")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	sub := client.Subscription(cfg.Subscription)
	sub.ReceiveSettings.MaxExtension = cfg.MaxExtension
	if sub.ReceiveSettings.MaxExtension <= 0 {
		sub.ReceiveSettings.MaxExtension = defaultPubSubMaxExtension
	}
	return &PubSubSource{
		client: client,
		sub:    sub,
		log:    logger.Ensure(log),
	}, nil
}

func (p *PubSubSource) Name() string { return "pubsub" }

// Consume runs Subscription.Receive until ctx is done. Each callback stays
// open until its message is settled, because Receive only returns once every
// outstanding message has been acked or nacked. Messages still waiting when
// ctx ends are nacked.
func (p *PubSubSource) Consume(ctx context.Context, sink Sink) error {
	p.log.InfoObj("pubsub consumer started", "consumer", map[string]any{"subscription": p.sub.ID()})
	err := p.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		partition := m.OrderingKey
		if partition == "" {
			partition = m.ID
		}

		settled := make(chan struct{})
		var once sync.Once
		settle := func(fn func()) func(context.Context) error {
			return func(context.Context) error {
				once.Do(func() {
					fn()
					close(settled)
				})
				return nil
			}
		}
		msg := NewMessage(p.Name(), partition, m.ID, m.Data, settle(m.Ack), settle(m.Nack))

		if err := sink.Submit(ctx, msg); err != nil {
			_ = msg.Nack(ctx)
			return
		}
		select {
		case <-settled:
		case <-ctx.Done():
			_ = msg.Nack(ctx)
		}
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

func (p *PubSubSource) Close() error { return p.client.Close() }
