package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the part of the SNS client the topic sink uses.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// TopicNotifier publishes events as JSON to an SNS topic for downstream consumers.
type TopicNotifier struct {
	client   SNSAPI
	topicARN string
}

func NewTopicNotifier(client SNSAPI, topicARN string) *TopicNotifier {
	return &TopicNotifier{client: client, topicARN: topicARN}
}

// NewTopicNotifierFromConfig builds the SNS client from an AWS config.
func NewTopicNotifierFromConfig(cfg aws.Config, topicARN string) *TopicNotifier {
	return NewTopicNotifier(sns.NewFromConfig(cfg), topicARN)
}

func (n *TopicNotifier) Name() string { return "sns" }

func (n *TopicNotifier) Notify(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	subject := e.Subject()
	// SNS caps subjects at 100 characters
	if len(subject) > 100 {
		subject = subject[:100]
	}
	_, err = n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(e.Type),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", n.topicARN, err)
	}
	return nil
}
