package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/estatechat/platform/internal/leads"
)

// Queue decouples lead creation from email delivery. The in-memory
// implementation loses anything buffered if the process dies; deployments
// that care run against SQS instead.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// leadCreatedPayload is the wire format between the publisher and the
// dispatcher workers.
type leadCreatedPayload struct {
	ID   string     `json:"id"`
	Kind string     `json:"kind"`
	Lead leads.Lead `json:"lead"`
}

const kindLeadCreated = "lead_created.v1"

func encodeLeadCreated(lead leads.Lead) (string, error) {
	payload := leadCreatedPayload{
		ID:   uuid.NewString(),
		Kind: kindLeadCreated,
		Lead: lead,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("notify: encode payload: %w", err)
	}
	return string(body), nil
}

func decodeLeadCreated(body string) (*leadCreatedPayload, error) {
	var payload leadCreatedPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("notify: decode payload: %w", err)
	}
	if payload.Kind != kindLeadCreated {
		return nil, fmt.Errorf("notify: unexpected payload kind %q", payload.Kind)
	}
	return &payload, nil
}
