package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at process start. There is no hot reload.
type Config struct {
	ServiceName        string
	LogLevel           string
	OrdersTable        string
	IdempotencyTable   string
	EventsQueueURL     string
	DeadLetterQueueURL string
	SourceQueueURL     string
	WorkerStage        string
	PaymentFailureRate float64
	MaxReceiveCount    int
	VisibilityDelay    time.Duration
	IdempotencyTTL     time.Duration
	RunLocal           bool
	LocalAddr          string
	CloudWatchEnabled  bool
	CloudWatchNS       string
}

// Load reads the environment, after an optional .env file in the working
// directory (local development only).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:        getEnv("SERVICE_NAME", "unknown"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		OrdersTable:        os.Getenv("ORDERS_TABLE"),
		IdempotencyTable:   os.Getenv("IDEMPOTENCY_TABLE"),
		EventsQueueURL:     os.Getenv("ORDER_EVENTS_QUEUE_URL"),
		DeadLetterQueueURL: os.Getenv("DEAD_LETTER_QUEUE_URL"),
		SourceQueueURL:     os.Getenv("SOURCE_QUEUE_URL"),
		WorkerStage:        os.Getenv("WORKER_STAGE"),
		RunLocal:           os.Getenv("RUN_LOCAL") == "true",
		LocalAddr:          getEnv("LOCAL_ADDR", ":8080"),
		CloudWatchEnabled:  os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchNS:       getEnv("CLOUDWATCH_NAMESPACE", "OrderSaga"),
	}

	var err error
	if cfg.PaymentFailureRate, err = getFloat("PAYMENT_FAILURE_RATE", 0.3); err != nil {
		return nil, err
	}
	if cfg.PaymentFailureRate < 0 || cfg.PaymentFailureRate > 1 {
		return nil, fmt.Errorf("PAYMENT_FAILURE_RATE must be within [0,1], got %v", cfg.PaymentFailureRate)
	}
	if cfg.MaxReceiveCount, err = getInt("MAX_RECEIVE_COUNT", 3); err != nil {
		return nil, err
	}
	if cfg.MaxReceiveCount < 1 {
		return nil, fmt.Errorf("MAX_RECEIVE_COUNT must be positive, got %d", cfg.MaxReceiveCount)
	}
	if cfg.VisibilityDelay, err = getDuration("VISIBILITY_DELAY", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", 48*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RequireOrdersTable is for binaries that cannot run without the store.
func (c *Config) RequireOrdersTable() error {
	if c.OrdersTable == "" {
		return fmt.Errorf("ORDERS_TABLE is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
