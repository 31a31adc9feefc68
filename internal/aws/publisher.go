package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Publish sends body to the queue. attributes are sent as String message
// attributes; empty values are skipped since SQS rejects them.
func (p *Publisher) Publish(ctx context.Context, body []byte, attributes map[string]string) error {
	if p.QueueURL == "" {
		return fmt.Errorf("send message: queue url not configured")
	}
	messageBody := string(body)
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &messageBody,
	}
	if attrs := messageAttributes(attributes); len(attrs) > 0 {
		input.MessageAttributes = attrs
	}

	_, err := p.SQS.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func messageAttributes(attributes map[string]string) map[string]sqstypes.MessageAttributeValue {
	out := make(map[string]sqstypes.MessageAttributeValue, len(attributes))
	for k, v := range attributes {
		if v == "" {
			continue
		}
		out[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(v),
		}
	}
	return out
}

// awsString helper
func awsString(s string) *string { return &s }
