// Package metrics emits saga counters to CloudWatch.
package metrics

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/aws"
)

// Metric names
const (
	OrdersCreated            = "OrdersCreated"
	InventoryReserved        = "InventoryReserved"
	PaymentAttempted         = "PaymentAttempted"
	PaymentDeclined          = "PaymentDeclined"
	PaymentSucceeded         = "PaymentSucceeded"
	OrdersConfirmed          = "OrdersConfirmed"
	OrdersPaymentFailed      = "OrdersPaymentFailed"
	DeadLetterMissingOrderID = "DeadLetterMissingOrderID"
	MalformedMessages        = "MalformedMessages"
	DuplicateDeliveries      = "DuplicateDeliveries"
)

// Recorder counts saga events.
type Recorder interface {
	Count(ctx context.Context, name string) error
}

// CloudWatch puts one data point per Count call, dimensioned by service.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	service   string
	nowFunc   func() time.Time
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace, service string) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		service:   service,
		nowFunc:   time.Now,
	}
}

func (c *CloudWatch) Count(ctx context.Context, name string) error {
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(c.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: sdkaws.String(name),
				Value:      sdkaws.Float64(1),
				Unit:       types.StandardUnitCount,
				Timestamp:  sdkaws.Time(c.nowFunc()),
				Dimensions: []types.Dimension{
					{Name: sdkaws.String("Service"), Value: sdkaws.String(c.service)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put metric %s: %w", name, err)
	}
	return nil
}

// Nop discards every count. Used when CLOUDWATCH_ENABLED is not set.
type Nop struct{}

func (Nop) Count(context.Context, string) error { return nil }

// New picks the recorder for a process: CloudWatch when enabled, Nop otherwise.
func New(enabled bool, client aws.CloudWatchAPI, namespace, service string) Recorder {
	if !enabled || client == nil {
		return Nop{}
	}
	return NewCloudWatch(client, namespace, service)
}
