package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/samvad-hq/samvad-news-ingestor/internal/logger"
)

// SNSSink fans events out through a topic. Subscribers can filter on the
// message attributes.
type SNSSink struct {
	TopicARN string `yaml:"topic_arn"`
	Region   string `yaml:"region"`
}

func snsSettings(cfg *SinkConfig) Settings {
	if cfg.SNS == nil {
		return nil
	}
	return cfg.SNS
}

func (s *SNSSink) normalize() {
	s.TopicARN = strings.TrimSpace(s.TopicARN)
	s.Region = strings.TrimSpace(s.Region)
}

func (s *SNSSink) validate() error {
	if !strings.HasPrefix(s.TopicARN, "arn:") {
		return fmt.Errorf("sns.topic_arn %q is not an ARN", s.TopicARN)
	}
	if s.Region == "" {
		return errors.New("sns.region is required")
	}
	return nil
}

// snsClient is the subset of the SNS client used by snsPublisher.
type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type snsPublisher struct {
	id       string
	topicARN string
	fifo     bool
	client   snsClient
	log      logger.Logger
}

func newSNSPublisher(ctx context.Context, cfg SinkConfig, log logger.Logger) (Publisher, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.SNS.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSNSPublisherWithClient(cfg.ID, cfg.SNS.TopicARN, sns.NewFromConfig(awsCfg), log), nil
}

func newSNSPublisherWithClient(id, topicARN string, client snsClient, log logger.Logger) *snsPublisher {
	return &snsPublisher{
		id:       id,
		topicARN: topicARN,
		fifo:     isFIFO(topicARN),
		client:   client,
		log:      logger.Ensure(log),
	}
}

func (s *snsPublisher) ID() string   { return s.id }
func (s *snsPublisher) Type() string { return TypeSNS }

// Publish sends the event to the topic with its routing attributes.
func (s *snsPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	attrs := make(map[string]types.MessageAttributeValue)
	for k, v := range evt.Attributes() {
		attrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	input := &sns.PublishInput{
		TopicArn:          aws.String(s.topicARN),
		Message:           aws.String(string(payload)),
		MessageAttributes: attrs,
	}
	if s.fifo {
		input.MessageGroupId = aws.String(groupID(evt))
		input.MessageDeduplicationId = aws.String(dedupID(evt))
	}

	out, err := s.client.Publish(ctx, input)
	if err != nil {
		s.log.ErrorObj("sns publisher send failed", "publisher_sns_error", map[string]any{
			"publisher_id": s.id,
			"url":          evt.Article.URL,
			"error":        err.Error(),
		})
		return fmt.Errorf("publish to sns: %w", err)
	}
	s.log.DebugObj("sns publisher delivered event", "publisher_sns_delivery", map[string]any{
		"publisher_id": s.id,
		"message_id":   aws.ToString(out.MessageId),
	})
	return nil
}
