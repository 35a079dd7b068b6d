package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
)

// SQSSink sends events to a queue. A queue URL ending in .fifo gets per-site
// message groups and URL-based deduplication.
type SQSSink struct {
	QueueURL string `yaml:"uri"`
	Region   string `yaml:"region"`
}

func sqsSettings(cfg *SinkConfig) Settings {
	if cfg.SQS == nil {
		return nil
	}
	return cfg.SQS
}

func (s *SQSSink) normalize() {
	s.QueueURL = strings.TrimSpace(s.QueueURL)
	s.Region = strings.TrimSpace(s.Region)
}

func (s *SQSSink) validate() error {
	if s.QueueURL == "" {
		return errors.New("sqs.uri is required")
	}
	if s.Region == "" {
		return errors.New("sqs.region is required")
	}
	return nil
}

// sqsClient is the subset of the SQS client used by sqsPublisher.
type sqsClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

type sqsPublisher struct {
	id       string
	queueURL string
	fifo     bool
	client   sqsClient
	log      logger.Logger
}

func newSQSPublisher(ctx context.Context, cfg SinkConfig, log logger.Logger) (Publisher, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.SQS.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSQSPublisherWithClient(cfg.ID, cfg.SQS.QueueURL, sqs.NewFromConfig(awsCfg), log), nil
}

func newSQSPublisherWithClient(id, queueURL string, client sqsClient, log logger.Logger) *sqsPublisher {
	return &sqsPublisher{
		id:       id,
		queueURL: queueURL,
		fifo:     isFIFO(queueURL),
		client:   client,
		log:      logger.Ensure(log),
	}
}

func (s *sqsPublisher) ID() string   { return s.id }
func (s *sqsPublisher) Type() string { return TypeSQS }

// Publish sends the event to the queue with its routing attributes.
func (s *sqsPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	attrs := make(map[string]types.MessageAttributeValue)
	for k, v := range evt.Attributes() {
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(payload)),
		MessageAttributes: attrs,
	}
	if s.fifo {
		input.MessageGroupId = aws.String(groupID(evt))
		input.MessageDeduplicationId = aws.String(dedupID(evt))
	}

	out, err := s.client.SendMessage(ctx, input)
	if err != nil {
		s.log.ErrorObj("sqs publisher send failed", "publisher_sqs_error", map[string]any{
			"publisher_id": s.id,
			"url":          evt.Article.URL,
			"error":        err.Error(),
		})
		return fmt.Errorf("send message to sqs: %w", err)
	}
	s.log.DebugObj("sqs publisher delivered event", "publisher_sqs_delivery", map[string]any{
		"publisher_id": s.id,
		"url":          evt.Article.URL,
		"message_id":   aws.ToString(out.MessageId),
	})
	return nil
}
