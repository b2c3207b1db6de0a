package publishers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type fakeSNS struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-2")}, nil
}

func TestSNSPublisherAnnouncesRun(t *testing.T) {
	api := &fakeSNS{}
	pub := &snsPublisher{id: "topic", topicARN: "arn:aws:sns:eu-west-1:1:runs", api: api, log: ensureLogger(nil)}

	if err := pub.Publish(context.Background(), Event{RunID: "run-2", Status: "failed"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := aws.ToString(api.input.TopicArn); got != "arn:aws:sns:eu-west-1:1:runs" {
		t.Fatalf("TopicArn = %s", got)
	}
	if got := aws.ToString(api.input.Subject); got != "daily digest run run-2: failed (0 items)" {
		t.Fatalf("Subject = %q", got)
	}
	if !strings.Contains(aws.ToString(api.input.Message), `"run_id":"run-2"`) {
		t.Fatalf("Message missing run_id: %s", aws.ToString(api.input.Message))
	}
}

func TestSNSPublisherWrapsError(t *testing.T) {
	pub := &snsPublisher{id: "topic", topicARN: "arn", api: &fakeSNS{err: errors.New("denied")}, log: ensureLogger(nil)}

	if err := pub.Publish(context.Background(), Event{RunID: "run-2"}); err == nil {
		t.Fatalf("expected error")
	}
}
