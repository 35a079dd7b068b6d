package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
)

const sqsErrorBackoff = time.Second

// SQSConfig configures the SQS long-poll source.
type SQSConfig struct {
	QueueURL        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	WaitSeconds     int32
	MaxMessages     int32
}

// sqsClient defines the minimal subset of the SQS client used by SQSSource.
type sqsClient interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// SQSSource long-polls a queue. FIFO message groups map to partitions.
type SQSSource struct {
	client      sqsClient
	queueURL    string
	waitSeconds int32
	maxMessages int32
	log         logger.Logger
}

// NewSQSSource loads AWS config, using static credentials when keys are set.
func NewSQSSource(ctx context.Context, cfg SQSConfig, log logger.Logger) (*SQSSource, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("sqs source requires a queue url")
	}

	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSQSSource(sqs.NewFromConfig(awsCfg), cfg, log), nil
}

func newSQSSource(client sqsClient, cfg SQSConfig, log logger.Logger) *SQSSource {
	wait := cfg.WaitSeconds
	if wait < 0 || wait > 20 {
		wait = 20
	}
	batch := cfg.MaxMessages
	if batch <= 0 || batch > 10 {
		batch = 10
	}
	return &SQSSource{
		client:      client,
		queueURL:    cfg.QueueURL,
		waitSeconds: wait,
		maxMessages: batch,
		log:         logger.Ensure(log),
	}
}

func (s *SQSSource) Name() string { return "sqs" }

// Consume long-polls until ctx is done. Receive errors are logged and retried.
func (s *SQSSource) Consume(ctx context.Context, sink Sink) error {
	s.log.InfoObj("sqs consumer started", "consumer", map[string]any{"queue_url": s.queueURL})
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.receiveOnce(ctx, sink); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.ErrorObj("sqs receive failed", "consumer_error", map[string]any{
				"queue_url": s.queueURL,
				"error":     err.Error(),
			})
			timer := time.NewTimer(sqsErrorBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

func (s *SQSSource) receiveOnce(ctx context.Context, sink Sink) error {
	out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(s.queueURL),
		MaxNumberOfMessages: s.maxMessages,
		WaitTimeSeconds:     s.waitSeconds,
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameMessageGroupId,
		},
	})
	if err != nil {
		return fmt.Errorf("receive message: %w", err)
	}

	for _, m := range out.Messages {
		id := aws.ToString(m.MessageId)
		partition := id
		if group, ok := m.Attributes[string(types.MessageSystemAttributeNameMessageGroupId)]; ok && group != "" {
			partition = group
		}
		receipt := m.ReceiptHandle
		msg := NewMessage(s.Name(), partition, id, []byte(aws.ToString(m.Body)),
			func(ctx context.Context) error {
				_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
					QueueUrl:      aws.String(s.queueURL),
					ReceiptHandle: receipt,
				})
				return err
			},
			func(ctx context.Context) error {
				_, err := s.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
					QueueUrl:          aws.String(s.queueURL),
					ReceiptHandle:     receipt,
					VisibilityTimeout: 0,
				})
				return err
			},
		)
		if err := sink.Submit(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQSSource) Close() error { return nil }
