package publishers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type fakeSNSClient struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNSClient) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-123")}, nil
}

func TestSNSPublisherSendsRoutingAttributes(t *testing.T) {
	client := &fakeSNSClient{}
	pub := newSNSPublisherWithClient("topic", "arn:aws:sns:ap-south-1:1:ingested", client, nil)

	if err := pub.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if got := aws.ToString(client.input.TopicArn); got != "arn:aws:sns:ap-south-1:1:ingested" {
		t.Fatalf("TopicArn = %s", got)
	}
	attr, ok := client.input.MessageAttributes["article_url"]
	if !ok || aws.ToString(attr.StringValue) != "https://news.example.com/monsoon" {
		t.Fatalf("article_url attribute missing or wrong: %#v", attr)
	}
	if msg := aws.ToString(client.input.Message); !strings.Contains(msg, `"type":"article.ingested"`) {
		t.Fatalf("message missing event type: %s", msg)
	}
	if client.input.MessageGroupId != nil {
		t.Fatalf("standard topic must not get a group id")
	}
}

func TestSNSPublisherFIFOTopic(t *testing.T) {
	client := &fakeSNSClient{}
	pub := newSNSPublisherWithClient("topic", "arn:aws:sns:ap-south-1:1:ingested.fifo", client, nil)

	if err := pub.Publish(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if aws.ToString(client.input.MessageGroupId) != "news.example.com" || client.input.MessageDeduplicationId == nil {
		t.Fatalf("fifo ids missing: %#v", client.input)
	}
}

func TestSNSPublisherPublishError(t *testing.T) {
	pub := newSNSPublisherWithClient("topic", "arn:aws:sns:ap-south-1:1:ingested", &fakeSNSClient{err: errors.New("boom")}, nil)

	if err := pub.Publish(context.Background(), sampleEvent()); err == nil {
		t.Fatalf("expected error from Publish")
	}
}
