package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/aws"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/logging"
)

// Poller consumes an SQS queue outside Lambda. Acked messages are deleted,
// retried ones get their visibility reset to VisibilityDelay; the queue's
// redrive policy does the dead-lettering.
type Poller struct {
	client          aws.SQSAPI
	queueURL        string
	handler         Handler
	deadLetter      Publisher
	logger          *zap.Logger
	batchSize       int32
	waitSeconds     int32
	visibilityDelay time.Duration
}

func NewPoller(client aws.SQSAPI, queueURL string, h Handler, deadLetter Publisher, visibilityDelay time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		client:          client,
		queueURL:        queueURL,
		handler:         h,
		deadLetter:      deadLetter,
		logger:          logger,
		batchSize:       10,
		waitSeconds:     20, // long polling
		visibilityDelay: visibilityDelay,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("sqs_polling_started", zap.String("queue", p.queueURL))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("sqs_polling_stopped", zap.String("queue", p.queueURL))
			return ctx.Err()
		default:
		}
		if _, err := p.PollOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			p.logger.Error("sqs_receive_failed", zap.String("queue", p.queueURL), zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
		}
	}
}

// PollOnce receives one batch and settles every message in it.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	out, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    &p.queueURL,
		MaxNumberOfMessages:         p.batchSize,
		WaitTimeSeconds:             p.waitSeconds,
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
		MessageAttributeNames:       []string{"All"},
	})
	if err != nil {
		return 0, fmt.Errorf("receive message: %w", err)
	}

	for _, m := range out.Messages {
		msg := messageFromSQS(m)
		reqCtx := messageContext(logging.WithRequestID(ctx, msg.ID), msg)
		res := dispatch(reqCtx, p.handler, msg)
		p.settle(reqCtx, msg, m.ReceiptHandle, res)
	}
	return len(out.Messages), nil
}

func (p *Poller) settle(ctx context.Context, msg Message, receipt *string, res Result) {
	log := logging.With(ctx, p.logger).With(zap.String("message_id", msg.ID))
	switch res.Outcome {
	case OutcomeAck:
		p.delete(ctx, receipt, log)
	case OutcomeDeadLetter:
		if p.deadLetter == nil {
			p.release(ctx, receipt, log)
			return
		}
		if err := p.deadLetter.Publish(ctx, []byte(msg.Body), msg.Attributes); err != nil {
			log.Error("dead_letter_forward_failed", zap.Error(err))
			p.release(ctx, receipt, log)
			return
		}
		p.delete(ctx, receipt, log)
	default:
		p.release(ctx, receipt, log)
	}
}

func (p *Poller) delete(ctx context.Context, receipt *string, log *zap.Logger) {
	_, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &p.queueURL,
		ReceiptHandle: receipt,
	})
	if err != nil {
		log.Error("sqs_delete_failed", zap.Error(err))
	}
}

// release makes a failed message visible again after the visibility delay.
func (p *Poller) release(ctx context.Context, receipt *string, log *zap.Logger) {
	_, err := p.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          &p.queueURL,
		ReceiptHandle:     receipt,
		VisibilityTimeout: int32(p.visibilityDelay / time.Second),
	})
	if err != nil {
		log.Error("sqs_change_visibility_failed", zap.Error(err))
	}
}

func messageFromSQS(m sqstypes.Message) Message {
	attrs := make(map[string]string, len(m.MessageAttributes))
	for k, v := range m.MessageAttributes {
		if v.StringValue != nil {
			attrs[k] = *v.StringValue
		}
	}
	msg := Message{
		Attributes:   attrs,
		ReceiveCount: parseReceiveCount(m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]),
	}
	if m.MessageId != nil {
		msg.ID = *m.MessageId
	}
	if m.Body != nil {
		msg.Body = *m.Body
	}
	return msg
}
