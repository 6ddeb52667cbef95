package events

import "time"

// Event types emitted by the widget and the conversation pipeline.
const (
	TypeWidgetView          = "widget_view"
	TypeConversationStarted = "conversation_started"
	TypeLeadCreated         = "lead_created"
)

// WidgetEvent is one analytics event. EventID is chosen by the producer so
// retried deliveries collapse into a single row.
type WidgetEvent struct {
	EventID        string    `json:"eventId"`
	TenantID       string    `json:"tenantId"`
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}
