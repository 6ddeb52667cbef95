package conversation

import (
	"time"

	"github.com/estatechat/platform/internal/engine"
)

// Conversation is one widget chat session. LeadID is empty until the
// qualification engine captures all three facts and a lead is created.
type Conversation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	WidgetID  string    `json:"widgetId"`
	LeadID    string    `json:"leadId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StoredMessage is a persisted chat message. The message log is the source
// of truth for qualification state; derived state is only ever a cache.
type StoredMessage struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	Role           engine.Role `json:"role"`
	Text           string      `json:"text"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// EngineHistory maps stored messages into the engine's view.
func EngineHistory(msgs []StoredMessage) []engine.Message {
	out := make([]engine.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, engine.Message{Role: m.Role, Text: m.Text})
	}
	return out
}

func roleFromString(s string) engine.Role {
	switch engine.Role(s) {
	case engine.RoleVisitor, engine.RoleAssistant, engine.RoleSystemNote:
		return engine.Role(s)
	default:
		return engine.RoleSystemNote
	}
}

func countVisitorMessages(msgs []StoredMessage) int {
	n := 0
	for _, m := range msgs {
		if m.Role == engine.RoleVisitor {
			n++
		}
	}
	return n
}
