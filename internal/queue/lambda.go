package queue

import (
	"context"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/logging"
)

// LambdaBatchHandler adapts a Handler to the SQS event source. Every record
// of the batch is attempted; only the ones that did not succeed are reported
// back (ReportBatchItemFailures must be enabled on the event source mapping).
type LambdaBatchHandler struct {
	handler    Handler
	deadLetter Publisher
	logger     *zap.Logger
}

// NewLambdaBatchHandler builds the adapter. deadLetter may be nil, in which
// case OutcomeDeadLetter falls back to the queue's redrive policy.
func NewLambdaBatchHandler(h Handler, deadLetter Publisher, logger *zap.Logger) *LambdaBatchHandler {
	return &LambdaBatchHandler{handler: h, deadLetter: deadLetter, logger: logger}
}

// Handle is the function passed to lambda.Start.
func (b *LambdaBatchHandler) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	resp := events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{}}
	for _, rec := range ev.Records {
		msg := MessageFromSQSEvent(rec)
		msgCtx := messageContext(ctx, msg)
		res := dispatch(msgCtx, b.handler, msg)
		if !b.settle(msgCtx, msg, res) {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

// settle returns true when the record can be deleted from the source queue.
func (b *LambdaBatchHandler) settle(ctx context.Context, msg Message, res Result) bool {
	switch res.Outcome {
	case OutcomeAck:
		return true
	case OutcomeDeadLetter:
		if b.deadLetter == nil {
			return false
		}
		if err := b.deadLetter.Publish(ctx, []byte(msg.Body), msg.Attributes); err != nil {
			logging.With(ctx, b.logger).Error("dead_letter_forward_failed",
				zap.String("message_id", msg.ID), zap.Error(err))
			return false
		}
		return true
	default:
		return false
	}
}

// MessageFromSQSEvent converts a Lambda SQS record. A missing or unparsable
// ApproximateReceiveCount is treated as a first delivery.
func MessageFromSQSEvent(rec events.SQSMessage) Message {
	attrs := make(map[string]string, len(rec.MessageAttributes))
	for k, v := range rec.MessageAttributes {
		if v.StringValue != nil {
			attrs[k] = *v.StringValue
		}
	}
	return Message{
		ID:           rec.MessageId,
		Body:         rec.Body,
		Attributes:   attrs,
		ReceiveCount: parseReceiveCount(rec.Attributes["ApproximateReceiveCount"]),
	}
}

func parseReceiveCount(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
