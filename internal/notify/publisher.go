package notify

import (
	"context"

	"github.com/estatechat/platform/internal/leads"
	"github.com/estatechat/platform/pkg/logging"
)

// Publisher pushes lead-created payloads onto the queue for the dispatcher
// workers to deliver.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("notify: queue required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

func (p *Publisher) EnqueueLeadCreated(ctx context.Context, lead leads.Lead) error {
	body, err := encodeLeadCreated(lead)
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return err
	}
	p.logger.Info("lead notification enqueued", "tenant_id", lead.TenantID, "lead_id", lead.ID)
	return nil
}
