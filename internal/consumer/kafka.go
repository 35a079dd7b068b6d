package consumer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

const kafkaGroupSuffix = "ingestor"

// KafkaConfig configures the Kafka consumer group reader.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	GroupIDPrefix string
	Username      string
	Password      string
	TLS           bool
}

// kafkaReader is the subset of *kafka.Reader used by KafkaSource.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource reads a topic as part of a consumer group, starting from the
// earliest offset when the group has no commits.
type KafkaSource struct {
	reader kafkaReader
	topic  string
	log    logger.Logger
}

// NewKafkaSource builds a Kafka source with SASL/PLAIN when a username is set.
func NewKafkaSource(cfg KafkaConfig, log logger.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka source requires brokers and topic")
	}

	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	if cfg.Username != "" {
		dialer.SASLMechanism = plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.TLS {
		dialer.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupIDPrefix + kafkaGroupSuffix,
		Topic:       cfg.Topic,
		Dialer:      dialer,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10 << 20,
	})
	return newKafkaSource(reader, cfg.Topic, log), nil
}

func newKafkaSource(reader kafkaReader, topic string, log logger.Logger) *KafkaSource {
	return &KafkaSource{reader: reader, topic: topic, log: logger.Ensure(log)}
}

func (k *KafkaSource) Name() string { return "kafka" }

// Consume fetches messages and submits them keyed by topic/partition.
func (k *KafkaSource) Consume(ctx context.Context, sink Sink) error {
	k.log.InfoObj("kafka consumer started", "consumer", map[string]any{"topic": k.topic})
	for {
		m, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}

		km := m
		partition := m.Topic + "/" + strconv.Itoa(m.Partition)
		msg := NewMessage(k.Name(), partition, partition+"/"+strconv.FormatInt(m.Offset, 10), m.Value,
			func(ctx context.Context) error { return k.reader.CommitMessages(ctx, km) },
			func(context.Context) error {
				k.log.WarnObj("kafka message left uncommitted", "consumer_nack", map[string]any{
					"partition": partition,
					"offset":    km.Offset,
				})
				return nil
			},
		)
		if err := sink.Submit(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka submit: %w", err)
		}
	}
}

func (k *KafkaSource) Close() error { return k.reader.Close() }
