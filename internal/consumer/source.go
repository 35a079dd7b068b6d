package consumer

import (
	"context"
	"fmt"

	"github.com/samvad-hq/samvad-news-ingestor/internal/config"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
)

// NewSource builds the transport selected by cfg.SourceType.
func NewSource(ctx context.Context, cfg *config.Config, log logger.Logger) (Source, error) {
	switch cfg.SourceType {
	case "kafka":
		src, err := NewKafkaSource(KafkaConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.KafkaTopic,
			GroupIDPrefix: cfg.KafkaGroupIDPrefix,
			Username:      cfg.KafkaUsername,
			Password:      cfg.KafkaPassword,
			TLS:           cfg.KafkaTLS,
		}, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "sqs":
		src, err := NewSQSSource(ctx, SQSConfig{
			QueueURL:        cfg.SQSQueueURL,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			WaitSeconds:     cfg.SQSWaitSeconds,
			MaxMessages:     cfg.SQSMaxMessages,
		}, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "pubsub":
		src, err := NewPubSubSource(ctx, PubSubConfig{
			ProjectID:       cfg.PubSubProjectID,
			Subscription:    cfg.PubSubSubscription,
			CredentialsFile: cfg.PubSubCredentialsFile,
			Endpoint:        cfg.PubSubEndpoint,
			MaxExtension:    cfg.PubSubMaxExtension,
		}, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	case "redis":
		src, err := NewRedisSource(RedisConfig{
			URL:          cfg.RedisURL,
			Stream:       cfg.RedisStream,
			Group:        cfg.RedisGroup,
			Consumer:     cfg.RedisConsumer,
			BlockTimeout: cfg.RedisBlockTime,
		}, log)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", cfg.SourceType)
	}
}
