package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/aws"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/config"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/metrics"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/orders"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/queue"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/saga"
)

// Processor is one saga stage wired to its AWS clients.
type Processor struct {
	stage      string
	handler    queue.Handler
	deadLetter queue.Publisher // nil: malformed messages are left to the redrive policy
	batch      *queue.LambdaBatchHandler
}

// NewProcessor builds the stage named by cfg.WorkerStage.
func NewProcessor(cfg *config.Config, clients *aws.AWSClients, logger *zap.Logger) (*Processor, error) {
	if err := cfg.RequireOrdersTable(); err != nil {
		return nil, err
	}

	var next queue.Publisher
	switch cfg.WorkerStage {
	case saga.StageInventory, saga.StagePayment:
		if cfg.EventsQueueURL == "" {
			return nil, fmt.Errorf("stage %s publishes downstream: ORDER_EVENTS_QUEUE_URL is required", cfg.WorkerStage)
		}
		next = aws.NewPublisher(clients.SQS, cfg.EventsQueueURL)
	}

	handler, err := saga.New(cfg.WorkerStage, saga.Deps{
		Store:       orders.NewDynamoStore(clients.DynamoDB, cfg.OrdersTable),
		Publisher:   next,
		Metrics:     metrics.New(cfg.CloudWatchEnabled, clients.CloudWatch, cfg.CloudWatchNS, cfg.ServiceName),
		Logger:      logger,
		FailureRate: cfg.PaymentFailureRate,
	})
	if err != nil {
		return nil, fmt.Errorf("WORKER_STAGE: %w", err)
	}

	p := &Processor{stage: cfg.WorkerStage, handler: handler}
	// the dead-letter stage is the sink; it never forwards
	if cfg.DeadLetterQueueURL != "" && cfg.WorkerStage != saga.StageDeadLetter {
		p.deadLetter = aws.NewPublisher(clients.SQS, cfg.DeadLetterQueueURL)
	}
	p.batch = queue.NewLambdaBatchHandler(handler, p.deadLetter, logger)
	return p, nil
}

// Poller consumes the stage's source queue outside Lambda.
func (p *Processor) Poller(cfg *config.Config, clients *aws.AWSClients, logger *zap.Logger) (*queue.Poller, error) {
	if cfg.SourceQueueURL == "" {
		return nil, fmt.Errorf("SOURCE_QUEUE_URL is required when RUN_LOCAL=true")
	}
	return queue.NewPoller(clients.SQS, cfg.SourceQueueURL, p.handler, p.deadLetter, cfg.VisibilityDelay, logger), nil
}
