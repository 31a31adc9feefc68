package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/aws"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/config"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/logging"
)

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

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		logger.Fatal("aws_clients_init_failed", zap.Error(err))
	}

	p, err := NewProcessor(cfg, clients, logger)
	if err != nil {
		logger.Fatal("worker_init_failed", zap.Error(err))
	}
	logger.Info("worker_started", zap.String("stage", p.stage), zap.Bool("local", cfg.RunLocal))

	// If RUN_LOCAL=true, long-poll the source queue instead of running under Lambda.
	if cfg.RunLocal {
		poller, err := p.Poller(cfg, clients, logger)
		if err != nil {
			logger.Fatal("worker_init_failed", zap.Error(err))
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker_stopped", zap.Error(err))
		}
		return
	}

	lambda.Start(p.batch.Handle)
}
