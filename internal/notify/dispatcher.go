package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/estatechat/platform/pkg/logging"
)

const (
	receiveBatchSize   = 10
	receiveWaitSeconds = 5
)

// Dispatcher drains the queue and hands each lead to the notification
// service. Messages are deleted only after a successful send so a backing
// queue with redelivery (SQS) retries transient failures; the in-memory
// queue simply drops them, which matches its durability promise.
type Dispatcher struct {
	queue   Queue
	service *Service
	logger  *logging.Logger
	workers int
}

func NewDispatcher(queue Queue, service *Service, workers int, logger *logging.Logger) *Dispatcher {
	if queue == nil {
		panic("notify: queue required")
	}
	if service == nil {
		panic("notify: service required")
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{queue: queue, service: service, logger: logger, workers: workers}
}

// Run blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.loop(ctx, worker)
		}(i)
	}
	wg.Wait()
}

func (d *Dispatcher) loop(ctx context.Context, worker int) {
	for {
		msgs, err := d.queue.Receive(ctx, receiveBatchSize, receiveWaitSeconds)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			d.logger.Error("queue receive failed", "worker", worker, "error", err)
			continue
		}
		for _, msg := range msgs {
			d.handle(ctx, msg)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg QueueMessage) {
	payload, err := decodeLeadCreated(msg.Body)
	if err != nil {
		d.logger.Error("dropping malformed queue message", "message_id", msg.ID, "error", err)
		// Malformed messages will never succeed; delete to avoid poison loops.
		if err := d.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
			d.logger.Error("failed to delete malformed message", "message_id", msg.ID, "error", err)
		}
		return
	}

	if err := d.service.NotifyNewLead(ctx, payload.Lead); err != nil {
		d.logger.Error("lead notification failed",
			"lead_id", payload.Lead.ID, "tenant_id", payload.Lead.TenantID, "error", err)
		return
	}

	if err := d.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		d.logger.Error("failed to delete delivered message", "message_id", msg.ID, "error", err)
	}
}
