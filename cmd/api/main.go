package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/aws"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/config"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/handlers"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/idempotency"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/ingress"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/logging"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/metrics"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/orders"
)

func setupRouter(cfg *config.Config, clients *aws.AWSClients, logger *zap.Logger) *gin.Engine {
	service := ingress.NewService(
		orders.NewDynamoStore(clients.DynamoDB, cfg.OrdersTable),
		aws.NewPublisher(clients.SQS, cfg.EventsQueueURL),
		metrics.New(cfg.CloudWatchEnabled, clients.CloudWatch, cfg.CloudWatchNS, cfg.ServiceName),
		logger,
	)

	hc := handlers.HandlerConfig{Service: service, Logger: logger}
	if cfg.IdempotencyTable != "" {
		hc.Idempotency = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	}
	return handlers.NewRouter(hc)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.RequireOrdersTable(); err != nil {
		logger.Fatal("api_init_failed", zap.Error(err))
	}

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		logger.Fatal("aws_clients_init_failed", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	r := setupRouter(cfg, clients, logger)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		logger.Info("local_server_started", zap.String("addr", cfg.LocalAddr))
		if err := r.Run(cfg.LocalAddr); err != nil {
			logger.Fatal("local_server_failed", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		// ProxyWithContext keeps the Lambda context, so aws_request_id reaches the logs
		return adapter.ProxyWithContext(ctx, req)
	})
}
