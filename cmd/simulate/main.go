// Command simulate runs the whole order saga in one process on the in-memory
// queue and store, then prints where every order ended up.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"sync/atomic"
	"text/tabwriter"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/config"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/correlation"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/events"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/ingress"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/logging"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/metrics"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/orders"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/queue"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/saga"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/validation"
)

const maxRounds = 100

type options struct {
	orders     int
	rate       float64
	maxReceive int
	batchSize  int
	logLevel   string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	opts := options{}
	flag.IntVar(&opts.orders, "orders", 10, "number of orders to create")
	flag.Float64Var(&opts.rate, "rate", cfg.PaymentFailureRate, "simulated payment failure rate in [0,1]")
	flag.IntVar(&opts.maxReceive, "max-receive", cfg.MaxReceiveCount, "payment queue max receive count before dead-lettering")
	flag.IntVar(&opts.batchSize, "batch", 10, "messages per stage invocation")
	flag.StringVar(&opts.logLevel, "log-level", "WARN", "log level for stage logs")
	flag.Parse()

	if opts.rate < 0 || opts.rate > 1 || opts.maxReceive < 1 || opts.batchSize < 1 {
		log.Fatalf("invalid flags: rate=%v max-receive=%d batch=%d", opts.rate, opts.maxReceive, opts.batchSize)
	}

	logger, err := logging.New("simulate", opts.logLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(context.Background(), opts, logger, os.Stdout); err != nil {
		logger.Fatal("simulation_failed", zap.Error(err))
	}
}

type pipeline struct {
	store   *orders.MemoryStore
	metrics *metrics.Memory
	ingress *ingress.Service
	stages  []stage
	// parked counts messages that exhausted retries on a stage other than
	// payment. Only the payment DLQ may mark orders PAYMENT_FAILED.
	parked atomic.Int64
}

type stage struct {
	name    string
	queue   *queue.MemoryQueue
	handler queue.Handler
}

func newPipeline(opts options, logger *zap.Logger) (*pipeline, error) {
	p := &pipeline{store: orders.NewMemoryStore(), metrics: metrics.NewMemory()}

	dlq := queue.NewMemoryQueue("InventoryReservedDLQ")
	failures := queue.NewMemoryQueue("StageFailuresDLQ")
	created := queue.NewMemoryQueue("OrderCreatedQueue", queue.WithRedrive(failures, opts.maxReceive))
	reserved := queue.NewMemoryQueue("InventoryReservedQueue", queue.WithRedrive(dlq, opts.maxReceive))
	paid := queue.NewMemoryQueue("PaymentSuccessQueue", queue.WithRedrive(failures, opts.maxReceive))

	p.ingress = ingress.NewService(p.store, created, p.metrics, logger)

	wiring := []struct {
		name string
		src  *queue.MemoryQueue
		next queue.Publisher
	}{
		{saga.StageInventory, created, reserved},
		{saga.StagePayment, reserved, paid},
		{saga.StageNotification, paid, nil},
		{saga.StageDeadLetter, dlq, nil},
	}
	for _, w := range wiring {
		h, err := saga.New(w.name, saga.Deps{
			Store:       p.store,
			Publisher:   w.next,
			Metrics:     p.metrics,
			Logger:      logger.With(zap.String("stage", w.name)),
			FailureRate: opts.rate,
		})
		if err != nil {
			return nil, err
		}
		p.stages = append(p.stages, stage{name: w.name, queue: w.src, handler: h})
	}

	parkLog := logger.With(zap.String("stage", "parked"))
	p.stages = append(p.stages, stage{name: "parked", queue: failures, handler: queue.HandlerFunc(
		func(ctx context.Context, msg queue.Message) queue.Result {
			logging.With(ctx, parkLog).Error("stage_message_parked",
				zap.String("message_id", msg.ID),
				zap.String("order_id", msg.Attribute(events.AttrOrderID)),
				zap.String("raw_body", msg.Body))
			p.parked.Add(1)
			return queue.Ack()
		})})
	return p, nil
}

// settle drains all stage queues concurrently, round after round, until a
// round delivers nothing.
func (p *pipeline) settle(ctx context.Context, batchSize int) (int, error) {
	for round := 1; round <= maxRounds; round++ {
		delivered := make([]int, len(p.stages))
		g, gctx := errgroup.WithContext(ctx)
		for i, s := range p.stages {
			i, s := i, s
			g.Go(func() error {
				stats, err := queue.Drain(gctx, s.queue, s.handler, batchSize)
				delivered[i] = stats.Total()
				if err != nil {
					return fmt.Errorf("%s: %w", s.name, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return round, err
		}
		total := 0
		for _, n := range delivered {
			total += n
		}
		if total == 0 {
			return round, nil
		}
	}
	return maxRounds, fmt.Errorf("saga not settled after %d rounds", maxRounds)
}

func run(ctx context.Context, opts options, logger *zap.Logger, out io.Writer) error {
	p, err := newPipeline(opts, logger)
	if err != nil {
		return err
	}

	ids := make([]string, 0, opts.orders)
	for i := 0; i < opts.orders; i++ {
		octx := correlation.WithID(ctx, correlation.New())
		o, err := p.ingress.CreateOrder(octx, validation.CreateOrderRequest{
			CustomerID: fmt.Sprintf("cust-%d", i+1),
			Items:      []interface{}{map[string]interface{}{"sku": "SKU-1", "qty": 1}},
		})
		if err != nil {
			return err
		}
		ids = append(ids, o.OrderID)
	}

	rounds, err := p.settle(ctx, opts.batchSize)
	if err != nil {
		return err
	}
	return p.report(ctx, out, ids, rounds)
}

func (p *pipeline) report(ctx context.Context, out io.Writer, ids []string, rounds int) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tSTATUS\tATTEMPTS\tPAYMENT_ERROR")
	byStatus := map[string]int{}
	for _, id := range ids {
		o, err := p.store.Get(ctx, id)
		if err != nil {
			return err
		}
		byStatus[o.Status]++
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", o.OrderID, o.Status, o.PaymentAttemptCount, o.PaymentError)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nsettled after %d rounds\n", rounds)
	if n := p.parked.Load(); n > 0 {
		fmt.Fprintf(out, "parked messages      %d\n", n)
	}
	for _, s := range []string{orders.StatusConfirmed, orders.StatusPaymentFailed, orders.StatusPending, orders.StatusInventoryReserved, orders.StatusPaid} {
		if n := byStatus[s]; n > 0 {
			fmt.Fprintf(out, "%-20s %d\n", s, n)
		}
	}

	snap := p.metrics.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(out, "\nmetrics:")
	for _, name := range names {
		fmt.Fprintf(out, "  %-26s %d\n", name, snap[name])
	}
	return nil
}
